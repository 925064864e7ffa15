// Package meter defines the shared shape of every resource meter and the
// observer fan-out that publishes their readings.
//
// A variant implements Source. Subject wraps a Source, joins its outputs
// once per tick and delivers one Update to each registered observer.
package meter

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/task"

	"golang.org/x/sync/errgroup"
)

// Source is the per-variant computation behind a Meter.
//
// Prepare runs first on every tick and captures readings that several
// outputs share. The six getters then run concurrently. Commit is called
// only after the resulting Update reached every observer, so variants keep
// new samples pending until then.
type Source interface {
	Prepare(ctx context.Context) error
	CalculateUsage(ctx context.Context) (float64, error)
	Processes(ctx context.Context) ([]ProcessEntry, error)
	Interfaces(ctx context.Context) ([]InterfaceEntry, error)
	SystemLoad(ctx context.Context) (LoadInfo, error)
	Directories(ctx context.Context) ([]DirEntry, error)
	GPU(ctx context.Context) (GPUInfo, error)
	Commit()
	Close() error
}

// Base provides empty outputs. Variants embed it and override what they
// actually measure.
type Base struct{}

func (Base) Prepare(context.Context) error { return nil }
func (Base) CalculateUsage(context.Context) (float64, error) { return 0, nil }
func (Base) Processes(context.Context) ([]ProcessEntry, error) { return []ProcessEntry{}, nil }
func (Base) Interfaces(context.Context) ([]InterfaceEntry, error) { return []InterfaceEntry{}, nil }
func (Base) SystemLoad(context.Context) (LoadInfo, error) { return LoadInfo{}, nil }
func (Base) Directories(context.Context) ([]DirEntry, error) { return []DirEntry{}, nil }
func (Base) GPU(context.Context) (GPUInfo, error) { return GPUInfo{}, nil }
func (Base) Commit() {}
func (Base) Close() error { return nil }

type Observer interface {
	Update(u Update)
}

// Callback adapts a function to Observer. Use the returned pointer to
// remove it again.
type Callback struct {
	fn func(Update)
}

func NewCallback(fn func(Update)) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Update(u Update) {
	c.fn(u)
}

type Meter interface {
	Kind() Kind
	CalculateUsage(ctx context.Context) (float64, error)
	Processes(ctx context.Context) ([]ProcessEntry, error)
	Interfaces(ctx context.Context) ([]InterfaceEntry, error)
	SystemLoad(ctx context.Context) (LoadInfo, error)
	Directories(ctx context.Context) ([]DirEntry, error)
	GPU(ctx context.Context) (GPUInfo, error)
	HasActivity(usage float64) bool
	AddObserver(o Observer)
	RemoveObserver(o Observer)
	NotifyAll(ctx context.Context) error
	Latest() (Update, bool)
	Destroy()
}

type Options struct {
	Log               logger.Logger
	ActivityThreshold float64
	// Tasks is cancelled on Destroy. It should be the set the Source's
	// reader schedules on.
	Tasks *task.Tasks
	Now   func() time.Time
}

type Subject struct {
	kind      Kind
	source    Source
	log       logger.Logger
	threshold float64
	tasks     *task.Tasks
	now       func() time.Time

	mu            sync.Mutex
	observers     *list.List
	index         map[Observer]*list.Element
	previousUsage float64
	latest        Update
	hasLatest     bool

	busy        atomic.Bool
	destroyed   atomic.Bool
	destroyOnce sync.Once
}

func New(kind Kind, source Source, opts Options) *Subject {
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Subject{
		kind:      kind,
		source:    source,
		log:       opts.Log.With("meter", kind.String()),
		threshold: opts.ActivityThreshold,
		tasks:     opts.Tasks,
		now:       opts.Now,
		observers: list.New(),
		index:     make(map[Observer]*list.Element),
	}
}

func (s *Subject) Kind() Kind {
	return s.kind
}

// AddObserver registers o. Adding an observer twice keeps its first
// position. Observers must be comparable.
func (s *Subject) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[o]; ok {
		return
	}
	s.index[o] = s.observers.PushBack(o)
}

// RemoveObserver unregisters o. Unknown observers are ignored.
func (s *Subject) RemoveObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.index[o]; ok {
		s.observers.Remove(el)
		delete(s.index, o)
	}
}

func (s *Subject) ObserverCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observers.Len()
}

func (s *Subject) HasActivity(usage float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return math.Abs(usage-s.previousUsage) >= s.threshold
}

func (s *Subject) Latest() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasLatest
}

// NotifyAll runs one tick. Without observers it returns at once and reads
// nothing. A tick that overlaps a running one fails with ErrBusy. When any
// output fails no Update is published and the previous state is kept.
func (s *Subject) NotifyAll(ctx context.Context) error {
	if s.destroyed.Load() {
		return ErrDestroyed
	}
	if s.ObserverCount() == 0 {
		return nil
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	update, err := s.collect(ctx)
	if err != nil {
		if s.destroyed.Load() || IsCancelled(err) {
			s.log.Debug("tick dropped", "error", err)
			return nil
		}
		return fmt.Errorf("meter %s: %w", s.kind, err)
	}

	update.HasActivity = s.HasActivity(update.Percent)

	for _, o := range s.snapshot() {
		o.Update(update)
	}

	s.source.Commit()

	s.mu.Lock()
	s.previousUsage = update.Percent
	s.latest = update
	s.hasLatest = true
	s.mu.Unlock()

	return nil
}

func (s *Subject) collect(ctx context.Context) (Update, error) {
	if err := s.source.Prepare(ctx); err != nil {
		return Update{}, err
	}

	u := Update{Kind: s.kind}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(field(s, "percent", &u.Percent, func() (float64, error) {
		return s.source.CalculateUsage(gctx)
	}))
	g.Go(field(s, "processes", &u.Processes, func() ([]ProcessEntry, error) {
		return s.source.Processes(gctx)
	}))
	g.Go(field(s, "interfaces", &u.Interfaces, func() ([]InterfaceEntry, error) {
		return s.source.Interfaces(gctx)
	}))
	g.Go(field(s, "system_load", &u.SystemLoad, func() (LoadInfo, error) {
		return s.source.SystemLoad(gctx)
	}))
	g.Go(field(s, "directories", &u.Directories, func() ([]DirEntry, error) {
		return s.source.Directories(gctx)
	}))
	g.Go(field(s, "gpu", &u.GPU, func() (GPUInfo, error) {
		return s.source.GPU(gctx)
	}))

	if err := g.Wait(); err != nil {
		return Update{}, err
	}

	u.Percent = clamp(u.Percent)
	if u.Processes == nil {
		u.Processes = []ProcessEntry{}
	}
	if u.Interfaces == nil {
		u.Interfaces = []InterfaceEntry{}
	}
	if u.Directories == nil {
		u.Directories = []DirEntry{}
	}
	u.RecordedAt = s.now()

	return u, nil
}

// field stores one output of the tick into dst. A parse error leaves the
// zero value and is only logged; any other error fails the tick.
func field[T any](s *Subject, name string, dst *T, get func() (T, error)) func() error {
	return func() error {
		v, err := get()
		switch {
		case err == nil:
			*dst = v
			return nil
		case errors.Is(err, ErrParse):
			s.log.Warn("field defaulted", "field", name, "error", err)
			return nil
		default:
			return err
		}
	}
}

func (s *Subject) snapshot() []Observer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Observer, 0, s.observers.Len())
	for el := s.observers.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(Observer))
	}
	return out
}

// Destroy cancels the meter's pending work and releases its source. Reads
// already running finish and are discarded. Calling it again does nothing.
func (s *Subject) Destroy() {
	s.destroyOnce.Do(func() {
		s.destroyed.Store(true)
		if s.tasks != nil {
			s.tasks.Cancel()
		}
		if err := s.source.Close(); err != nil {
			s.log.Warn("close source", "error", err)
		}

		s.mu.Lock()
		s.observers.Init()
		clear(s.index)
		s.mu.Unlock()
	})
}

// acquire takes the single-flight flag for a read outside NotifyAll so it
// never overwrites the pending state of a running tick.
func (s *Subject) acquire() (release func(), err error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { s.busy.Store(false) }, nil
}

// CalculateUsage computes the usage now. The sample is not committed, so
// the next tick still measures against the last published one.
func (s *Subject) CalculateUsage(ctx context.Context) (float64, error) {
	release, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	if err := s.source.Prepare(ctx); err != nil {
		return 0, err
	}
	v, err := s.source.CalculateUsage(ctx)
	return clamp(v), err
}

func (s *Subject) Processes(ctx context.Context) ([]ProcessEntry, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	return s.source.Processes(ctx)
}

func (s *Subject) Interfaces(ctx context.Context) ([]InterfaceEntry, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.source.Prepare(ctx); err != nil {
		return nil, err
	}
	return s.source.Interfaces(ctx)
}

func (s *Subject) SystemLoad(ctx context.Context) (LoadInfo, error) {
	release, err := s.acquire()
	if err != nil {
		return LoadInfo{}, err
	}
	defer release()

	return s.source.SystemLoad(ctx)
}

func (s *Subject) Directories(ctx context.Context) ([]DirEntry, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	return s.source.Directories(ctx)
}

func (s *Subject) GPU(ctx context.Context) (GPUInfo, error) {
	release, err := s.acquire()
	if err != nil {
		return GPUInfo{}, err
	}
	defer release()

	if err := s.source.Prepare(ctx); err != nil {
		return GPUInfo{}, err
	}
	return s.source.GPU(ctx)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
