package task

import "context"

type result[T any] struct {
	val T
	err error
}

// Await schedules fn as a subtask of t and waits for it. If ctx ends first
// the handle is cancelled and ctx.Err() returned. A cancelled handle yields
// ErrCancelled. fn may still be running when Await returns early; its
// result is then dropped.
func Await[T any](ctx context.Context, t *Tasks, fn func() (T, error)) (T, error) {
	return await(ctx, t.NewSubtask, fn)
}

// AwaitTask is Await for standalone work such as an external command.
func AwaitTask[T any](ctx context.Context, t *Tasks, fn func() (T, error)) (T, error) {
	return await(ctx, t.NewTask, fn)
}

func await[T any](ctx context.Context, schedule func(func()) *Handle, fn func() (T, error)) (T, error) {
	out := make(chan result[T], 1)
	h := schedule(func() {
		v, err := fn()
		out <- result[T]{val: v, err: err}
	})

	var zero T
	select {
	case res := <-out:
		return res.val, res.err
	case <-h.Done():
		select {
		case res := <-out:
			return res.val, res.err
		default:
			return zero, ErrCancelled
		}
	case <-ctx.Done():
		h.Cancel()
		return zero, ctx.Err()
	}
}
