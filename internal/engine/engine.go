// Package engine ticks every registered meter on a fixed interval.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
)

type Engine struct {
	interval time.Duration
	log      logger.Logger

	mu     sync.RWMutex
	meters map[meter.Kind]meter.Meter
	order  []meter.Kind

	inflight sync.WaitGroup
}

func New(interval time.Duration, log logger.Logger) *Engine {
	return &Engine{
		interval: interval,
		log:      log,
		meters:   make(map[meter.Kind]meter.Meter),
	}
}

// Register adds m. Only one meter per kind may be registered.
func (e *Engine) Register(m meter.Meter) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.meters[m.Kind()]; ok {
		return fmt.Errorf("engine: meter %s already registered", m.Kind())
	}
	e.meters[m.Kind()] = m
	e.order = append(e.order, m.Kind())

	e.log.Info("engine: meter enabled", "meter", m.Kind().String())
	return nil
}

// Unregister destroys the meter of kind. It reports whether one existed.
func (e *Engine) Unregister(kind meter.Kind) bool {
	e.mu.Lock()
	m, ok := e.meters[kind]
	if ok {
		delete(e.meters, kind)
		for i, k := range e.order {
			if k == kind {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
	e.mu.Unlock()

	if ok {
		m.Destroy()
		e.log.Info("engine: meter disabled", "meter", kind.String())
	}
	return ok
}

func (e *Engine) Meter(kind meter.Kind) (meter.Meter, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.meters[kind]
	return m, ok
}

// Meters returns the registered meters in registration order.
func (e *Engine) Meters() []meter.Meter {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]meter.Meter, 0, len(e.order))
	for _, k := range e.order {
		out = append(out, e.meters[k])
	}
	return out
}

// Start ticks at once and then on every interval until ctx is done. It
// waits for running ticks before returning. A meter still busy with its
// previous tick skips the new one.
func (e *Engine) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.goTick(ctx)

	for {
		select {
		case <-ticker.C:
			e.goTick(ctx)
		case <-ctx.Done():
			e.inflight.Wait()
			return
		}
	}
}

func (e *Engine) goTick(ctx context.Context) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.Tick(ctx)
	}()
}

// Tick notifies every meter concurrently and waits for all of them. Each
// meter gets one interval to finish.
func (e *Engine) Tick(ctx context.Context) {
	meters := e.Meters()

	tickCtx, cancel := context.WithTimeout(ctx, e.interval)
	defer cancel()

	var wg sync.WaitGroup
	for _, m := range meters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.notify(tickCtx, m)
		}()
	}
	wg.Wait()
}

func (e *Engine) notify(ctx context.Context, m meter.Meter) {
	err := m.NotifyAll(ctx)
	switch {
	case err == nil:
	case errors.Is(err, meter.ErrBusy):
		e.log.Debug("engine: tick skipped, meter busy", "meter", m.Kind().String())
	case errors.Is(err, meter.ErrDestroyed):
	case errors.Is(err, context.DeadlineExceeded):
		e.log.Warn("engine: tick timed out", "meter", m.Kind().String(), "interval", e.interval)
	default:
		e.log.Warn("engine: tick failed", "meter", m.Kind().String(), "error", err)
	}
}

// Close destroys every registered meter.
func (e *Engine) Close() {
	e.mu.Lock()
	meters := e.meters
	e.meters = make(map[meter.Kind]meter.Meter)
	e.order = nil
	e.mu.Unlock()

	for _, m := range meters {
		m.Destroy()
	}
}
