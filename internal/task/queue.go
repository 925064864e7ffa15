// Package task runs deferred work on a shared low-priority worker pool.
//
// Work is grouped into Tasks sets, one per owner. Cancelling a set drops
// every handle that has not started yet. Handles that are already running
// are never interrupted.
package task

import (
	"context"
	"sync"

	"horizonx-meter/internal/logger"
)

type Queue struct {
	workers int
	log     logger.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Handle
	closed  bool

	wg sync.WaitGroup
}

func NewQueue(workers int, log logger.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}

	q := &Queue{workers: workers, log: log}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the workers. They exit once ctx is done or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}

	go func() {
		<-ctx.Done()
		q.Stop()
	}()

	q.log.Debug("task: queue started", "workers", q.workers)
}

// Stop wakes every worker and waits for running handles to return.
// Handles still queued are cancelled.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	left := q.pending
	q.pending = nil
	q.cond.Broadcast()
	q.mu.Unlock()

	for _, h := range left {
		h.Cancel()
	}

	q.wg.Wait()
}

func (q *Queue) NewTasks() *Tasks {
	return &Tasks{queue: q, handles: make(map[*Handle]struct{})}
}

func (q *Queue) push(h *Handle) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		h.Cancel()
		return
	}
	q.pending = append(q.pending, h)
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *Queue) work() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		h := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		h.run(q.log)
	}
}
