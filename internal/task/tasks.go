package task

import (
	"errors"
	"sync"
	"sync/atomic"

	"horizonx-meter/internal/logger"
)

var ErrCancelled = errors.New("task: cancelled")

type Priority int

const (
	// PrioritySubtask and PriorityTask share the same low-priority tier.
	PrioritySubtask Priority = iota
	PriorityTask
)

func (p Priority) String() string {
	if p == PriorityTask {
		return "task"
	}
	return "subtask"
}

const (
	statePending int32 = iota
	stateRunning
	stateDone
	stateCancelled
)

type Handle struct {
	fn       func()
	priority Priority
	owner    *Tasks

	state atomic.Int32
	done  chan struct{}
}

func (h *Handle) Priority() Priority {
	return h.priority
}

// Cancel drops the handle if it has not started. It reports whether the
// handle was cancelled by this call.
func (h *Handle) Cancel() bool {
	if !h.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	close(h.done)
	h.owner.forget(h)
	return true
}

// Done is closed when the handle finished running or was cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err is ErrCancelled for a cancelled handle and nil otherwise.
func (h *Handle) Err() error {
	if h.state.Load() == stateCancelled {
		return ErrCancelled
	}
	return nil
}

func (h *Handle) run(log logger.Logger) {
	if !h.state.CompareAndSwap(statePending, stateRunning) {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("task: handle panicked", "priority", h.priority.String(), "panic", r)
		}
		h.state.Store(stateDone)
		close(h.done)
		h.owner.forget(h)
	}()

	h.fn()
}

// Tasks is the set of handles issued for one owner.
type Tasks struct {
	queue *Queue

	mu        sync.Mutex
	handles   map[*Handle]struct{}
	cancelled bool
}

func (t *Tasks) NewSubtask(fn func()) *Handle {
	return t.schedule(fn, PrioritySubtask)
}

func (t *Tasks) NewTask(fn func()) *Handle {
	return t.schedule(fn, PriorityTask)
}

// Cancel drops every pending handle of the set. Handles created afterwards
// are cancelled immediately. Calling it again does nothing.
func (t *Tasks) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	pending := make([]*Handle, 0, len(t.handles))
	for h := range t.handles {
		pending = append(pending, h)
	}
	t.mu.Unlock()

	for _, h := range pending {
		h.Cancel()
	}
}

// Pending counts handles that are queued or running.
func (t *Tasks) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}

func (t *Tasks) schedule(fn func(), p Priority) *Handle {
	h := &Handle{fn: fn, priority: p, owner: t, done: make(chan struct{})}

	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		h.state.Store(stateCancelled)
		close(h.done)
		return h
	}
	t.handles[h] = struct{}{}
	t.mu.Unlock()

	t.queue.push(h)
	return h
}

func (t *Tasks) forget(h *Handle) {
	t.mu.Lock()
	delete(t.handles, h)
	t.mu.Unlock()
}
