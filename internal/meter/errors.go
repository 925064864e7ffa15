package meter

import (
	"context"
	"errors"
	"fmt"

	"horizonx-meter/internal/file"
)

var (
	ErrParse     = errors.New("parse error")
	ErrBusy      = errors.New("meter: tick already in flight")
	ErrDestroyed = errors.New("meter: destroyed")
)

// ParseErrorf wraps ErrParse with the offending field.
func ParseErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

func IsCancelled(err error) bool {
	return errors.Is(err, file.ErrCancelled) || errors.Is(err, context.Canceled)
}

// Interrupted reports whether a failed read ends the whole tick rather than
// one item of it: the meter was destroyed or the tick ran out of time.
// Sites that skip a missing device, sensor or process must stop on it.
func Interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || IsCancelled(err) || errors.Is(err, context.DeadlineExceeded)
}
