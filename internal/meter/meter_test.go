package meter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"horizonx-meter/internal/file"
	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/task"
)

type fakeSource struct {
	Base

	mu      sync.Mutex
	usage   float64
	err     error
	calls   atomic.Int32
	commits atomic.Int32
	closed  atomic.Int32
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeSource) set(usage float64, err error) {
	f.mu.Lock()
	f.usage, f.err = usage, err
	f.mu.Unlock()
}

func (f *fakeSource) CalculateUsage(ctx context.Context) (float64, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage, f.err
}

func (f *fakeSource) Processes(context.Context) ([]ProcessEntry, error) {
	return []ProcessEntry{{PID: 1, Command: "init", Value: 3}}, nil
}

func (f *fakeSource) Commit() {
	f.commits.Add(1)
}

func (f *fakeSource) Close() error {
	f.closed.Add(1)
	return nil
}

type recorder struct {
	name string
	log  *[]string
	got  []Update
}

func (r *recorder) Update(u Update) {
	*r.log = append(*r.log, r.name)
	r.got = append(r.got, u)
}

func newSubject(src Source, threshold float64) *Subject {
	return New(CPU, src, Options{Log: logger.Discard(), ActivityThreshold: threshold})
}

func TestNotifyAllWithoutObserversReadsNothing(t *testing.T) {
	src := &fakeSource{}
	s := newSubject(src, 0)

	if err := s.NotifyAll(context.Background()); err != nil {
		t.Fatalf("NotifyAll() error: %v", err)
	}
	if got := src.calls.Load(); got != 0 {
		t.Errorf("source calls = %d, want 0", got)
	}
	if _, ok := s.Latest(); ok {
		t.Error("Latest() ok = true, want false")
	}
}

func TestNotifyAllOrderAndRemoval(t *testing.T) {
	src := &fakeSource{}
	src.set(42, nil)
	s := newSubject(src, 0)

	var order []string
	a := &recorder{name: "a", log: &order}
	b := &recorder{name: "b", log: &order}
	c := &recorder{name: "c", log: &order}
	s.AddObserver(a)
	s.AddObserver(b)
	s.AddObserver(c)
	s.AddObserver(a)

	if err := s.NotifyAll(context.Background()); err != nil {
		t.Fatalf("NotifyAll() error: %v", err)
	}
	if got := join(order); got != "abc" {
		t.Errorf("delivery order = %q, want abc", got)
	}

	s.RemoveObserver(b)
	s.RemoveObserver(b)
	order = order[:0]

	if err := s.NotifyAll(context.Background()); err != nil {
		t.Fatalf("NotifyAll() error: %v", err)
	}
	if got := join(order); got != "ac" {
		t.Errorf("delivery order after removal = %q, want ac", got)
	}

	u := a.got[0]
	if u.Percent != 42 || u.Kind != CPU {
		t.Errorf("update = %+v, want percent 42 kind cpu", u)
	}
	if len(u.Processes) != 1 || u.Processes[0].Command != "init" {
		t.Errorf("processes = %+v", u.Processes)
	}
	if u.Interfaces == nil || u.Directories == nil {
		t.Error("empty lists should be non-nil")
	}
	if got := src.commits.Load(); got != 2 {
		t.Errorf("commits = %d, want 2", got)
	}
}

func TestNotifyAllFailureKeepsState(t *testing.T) {
	src := &fakeSource{}
	src.set(30, nil)
	s := newSubject(src, 0)

	var order []string
	r := &recorder{name: "r", log: &order}
	s.AddObserver(r)

	if err := s.NotifyAll(context.Background()); err != nil {
		t.Fatalf("first NotifyAll() error: %v", err)
	}

	src.set(80, &file.PathError{Op: "read", Path: "/proc/stat", Err: file.ErrIO})
	err := s.NotifyAll(context.Background())
	if !errors.Is(err, file.ErrIO) {
		t.Fatalf("NotifyAll() error = %v, want ErrIO", err)
	}

	if len(r.got) != 1 {
		t.Errorf("deliveries = %d, want 1", len(r.got))
	}
	if got := src.commits.Load(); got != 1 {
		t.Errorf("commits = %d, want 1", got)
	}
	latest, ok := s.Latest()
	if !ok || latest.Percent != 30 {
		t.Errorf("Latest() = %v, %v; want percent 30", latest.Percent, ok)
	}
}

func TestParseErrorDefaultsOneField(t *testing.T) {
	src := &fakeSource{}
	src.set(80, ParseErrorf("cpu line"))
	s := newSubject(src, 0)

	var order []string
	r := &recorder{name: "r", log: &order}
	s.AddObserver(r)

	if err := s.NotifyAll(context.Background()); err != nil {
		t.Fatalf("NotifyAll() error: %v", err)
	}
	if len(r.got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(r.got))
	}

	u := r.got[0]
	if u.Percent != 0 {
		t.Errorf("Percent = %v, want 0 for the unparsable field", u.Percent)
	}
	if len(u.Processes) != 1 || u.Processes[0].Command != "init" {
		t.Errorf("Processes = %+v, want the intact list", u.Processes)
	}
	if got := src.commits.Load(); got != 1 {
		t.Errorf("commits = %d, want 1", got)
	}
}

func TestNotifyAllClampsPercent(t *testing.T) {
	tests := []struct {
		name  string
		usage float64
		want  float64
	}{
		{"above", 150, 100},
		{"below", -5, 0},
		{"inside", 55.5, 55.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{}
			src.set(tt.usage, nil)
			s := newSubject(src, 0)
			var order []string
			r := &recorder{name: "r", log: &order}
			s.AddObserver(r)

			if err := s.NotifyAll(context.Background()); err != nil {
				t.Fatal(err)
			}
			if r.got[0].Percent != tt.want {
				t.Errorf("Percent = %v, want %v", r.got[0].Percent, tt.want)
			}
		})
	}
}

func TestHasActivity(t *testing.T) {
	src := &fakeSource{}
	s := newSubject(src, 10)
	var order []string
	r := &recorder{name: "r", log: &order}
	s.AddObserver(r)

	steps := []struct {
		usage float64
		want  bool
	}{
		{5, false},
		{20, true},
		{15, false},
		{5, true},
	}

	for i, step := range steps {
		src.set(step.usage, nil)
		if err := s.NotifyAll(context.Background()); err != nil {
			t.Fatal(err)
		}
		if got := r.got[i].HasActivity; got != step.want {
			t.Errorf("step %d usage %v: HasActivity = %v, want %v", i, step.usage, got, step.want)
		}
	}
}

func TestNotifyAllSingleFlight(t *testing.T) {
	src := &fakeSource{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	src.set(10, nil)
	s := newSubject(src, 0)
	s.AddObserver(NewCallback(func(Update) {}))

	done := make(chan error, 1)
	go func() { done <- s.NotifyAll(context.Background()) }()
	<-src.entered

	if err := s.NotifyAll(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("overlapping NotifyAll() = %v, want ErrBusy", err)
	}

	close(src.block)
	if err := <-done; err != nil {
		t.Errorf("first NotifyAll() = %v", err)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("source calls = %d, want 1", got)
	}
}

func TestGettersBusyDuringTick(t *testing.T) {
	src := &fakeSource{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	src.set(10, nil)
	s := newSubject(src, 0)
	s.AddObserver(NewCallback(func(Update) {}))

	done := make(chan error, 1)
	go func() { done <- s.NotifyAll(context.Background()) }()
	<-src.entered

	ctx := context.Background()
	if _, err := s.CalculateUsage(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("CalculateUsage() = %v, want ErrBusy", err)
	}
	if _, err := s.Processes(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("Processes() = %v, want ErrBusy", err)
	}
	if _, err := s.Interfaces(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("Interfaces() = %v, want ErrBusy", err)
	}
	if _, err := s.SystemLoad(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("SystemLoad() = %v, want ErrBusy", err)
	}
	if _, err := s.Directories(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("Directories() = %v, want ErrBusy", err)
	}
	if _, err := s.GPU(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("GPU() = %v, want ErrBusy", err)
	}

	close(src.block)
	if err := <-done; err != nil {
		t.Fatalf("NotifyAll() = %v", err)
	}

	// Once the tick is done a direct read runs and commits nothing.
	src.entered = nil
	got, err := s.CalculateUsage(ctx)
	if err != nil || got != 10 {
		t.Errorf("CalculateUsage() = %v, %v; want 10, nil", got, err)
	}
	if c := src.commits.Load(); c != 1 {
		t.Errorf("commits = %d, want 1", c)
	}
}

func TestDestroy(t *testing.T) {
	q := task.NewQueue(1, logger.Discard())
	tasks := q.NewTasks()
	pending := tasks.NewSubtask(func() {})

	src := &fakeSource{}
	s := New(Memory, src, Options{Tasks: tasks})
	s.AddObserver(NewCallback(func(Update) {}))

	s.Destroy()
	s.Destroy()

	if got := src.closed.Load(); got != 1 {
		t.Errorf("Close calls = %d, want 1", got)
	}
	if !errors.Is(pending.Err(), task.ErrCancelled) {
		t.Errorf("pending handle Err() = %v, want cancelled", pending.Err())
	}
	if err := s.NotifyAll(context.Background()); !errors.Is(err, ErrDestroyed) {
		t.Errorf("NotifyAll() after Destroy = %v, want ErrDestroyed", err)
	}
}

func TestCancelledTickIsDropped(t *testing.T) {
	src := &fakeSource{}
	src.set(50, &file.PathError{Op: "read", Path: "/proc/stat", Err: file.ErrCancelled})
	s := newSubject(src, 0)
	var order []string
	r := &recorder{name: "r", log: &order}
	s.AddObserver(r)

	if err := s.NotifyAll(context.Background()); err != nil {
		t.Errorf("NotifyAll() = %v, want nil", err)
	}
	if len(r.got) != 0 {
		t.Errorf("deliveries = %d, want 0", len(r.got))
	}
}

func TestRecordedAt(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	src := &fakeSource{}
	s := New(GPU, src, Options{Now: func() time.Time { return at }})
	var order []string
	r := &recorder{name: "r", log: &order}
	s.AddObserver(r)

	if err := s.NotifyAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !r.got[0].RecordedAt.Equal(at) {
		t.Errorf("RecordedAt = %v, want %v", r.got[0].RecordedAt, at)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("fan"); err == nil {
		t.Error("ParseKind(fan) error = nil")
	}
}

func join(xs []string) string {
	out := ""
	for _, x := range xs {
		out += x
	}
	return out
}
