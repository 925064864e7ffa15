package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
)

type countingSource struct {
	meter.Base
	calls atomic.Int32
	usage float64
}

func (c *countingSource) CalculateUsage(context.Context) (float64, error) {
	c.calls.Add(1)
	return c.usage, nil
}

type slowSource struct {
	meter.Base
}

func (slowSource) CalculateUsage(ctx context.Context) (float64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

type sink struct {
	mu  sync.Mutex
	got []meter.Update
}

func (s *sink) Update(u meter.Update) {
	s.mu.Lock()
	s.got = append(s.got, u)
	s.mu.Unlock()
}

func (s *sink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func subject(kind meter.Kind, src meter.Source) *meter.Subject {
	return meter.New(kind, src, meter.Options{Log: logger.Discard()})
}

func TestRegister(t *testing.T) {
	e := New(time.Second, logger.Discard())

	if err := e.Register(subject(meter.CPU, &countingSource{})); err != nil {
		t.Fatal(err)
	}
	if err := e.Register(subject(meter.Memory, &countingSource{})); err != nil {
		t.Fatal(err)
	}
	if err := e.Register(subject(meter.CPU, &countingSource{})); err == nil {
		t.Error("second cpu meter registered, want error")
	}

	meters := e.Meters()
	if len(meters) != 2 || meters[0].Kind() != meter.CPU || meters[1].Kind() != meter.Memory {
		t.Errorf("Meters() = %v", meters)
	}
	if _, ok := e.Meter(meter.Memory); !ok {
		t.Error("Meter(memory) missing")
	}

	if !e.Unregister(meter.CPU) {
		t.Error("Unregister(cpu) = false")
	}
	if e.Unregister(meter.CPU) {
		t.Error("second Unregister(cpu) = true")
	}
	if _, ok := e.Meter(meter.CPU); ok {
		t.Error("cpu still registered")
	}
}

func TestTickNotifiesEveryMeter(t *testing.T) {
	e := New(time.Second, logger.Discard())
	cpuSink, memSink := &sink{}, &sink{}

	cpu := subject(meter.CPU, &countingSource{usage: 12})
	cpu.AddObserver(cpuSink)
	mem := subject(meter.Memory, &countingSource{usage: 34})
	mem.AddObserver(memSink)
	e.Register(cpu)
	e.Register(mem)

	e.Tick(context.Background())

	if cpuSink.len() != 1 || memSink.len() != 1 {
		t.Fatalf("updates = %d/%d, want 1/1", cpuSink.len(), memSink.len())
	}
	if cpuSink.got[0].Percent != 12 || memSink.got[0].Kind != meter.Memory {
		t.Errorf("updates = %+v / %+v", cpuSink.got[0], memSink.got[0])
	}
}

func TestTickTimesOutSlowMeter(t *testing.T) {
	e := New(50*time.Millisecond, logger.Discard())
	slow := subject(meter.GPU, slowSource{})
	slow.AddObserver(&sink{})
	e.Register(slow)

	done := make(chan struct{})
	go func() {
		e.Tick(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Tick() did not honour the interval timeout")
	}
	if _, ok := slow.Latest(); ok {
		t.Error("timed out tick published an update")
	}
}

func TestStartTicksUntilCancelled(t *testing.T) {
	e := New(10*time.Millisecond, logger.Discard())
	src := &countingSource{}
	m := subject(meter.CPU, src)
	m.AddObserver(&sink{})
	e.Register(m)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		e.Start(ctx)
		close(stopped)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for src.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-stopped

	if src.calls.Load() < 3 {
		t.Errorf("ticks = %d, want at least 3", src.calls.Load())
	}
}

func TestClose(t *testing.T) {
	e := New(time.Second, logger.Discard())
	m := subject(meter.CPU, &countingSource{})
	m.AddObserver(&sink{})
	e.Register(m)

	e.Close()
	if len(e.Meters()) != 0 {
		t.Error("meters left after Close")
	}
	if err := m.NotifyAll(context.Background()); err != meter.ErrDestroyed {
		t.Errorf("NotifyAll() after Close = %v, want ErrDestroyed", err)
	}
}
