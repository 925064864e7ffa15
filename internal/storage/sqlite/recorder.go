package sqlite

import (
	"context"

	"horizonx-meter/internal/logger"
	"horizonx-meter/internal/meter"
)

// Recorder is a meter observer that writes updates to the history table.
// Update never blocks the publishing meter; when the buffer is full the
// update is dropped.
type Recorder struct {
	repo *HistoryRepository
	log  logger.Logger
	ch   chan meter.Update
}

func NewRecorder(repo *HistoryRepository, buffer int, log logger.Logger) *Recorder {
	if buffer < 1 {
		buffer = 1
	}
	return &Recorder{repo: repo, log: log, ch: make(chan meter.Update, buffer)}
}

func (r *Recorder) Update(u meter.Update) {
	select {
	case r.ch <- u:
	default:
		r.log.Warn("history: buffer full, update dropped", "meter", u.Kind.String())
	}
}

// Run writes buffered updates until ctx is done, then flushes what is left.
// Writes already started are not interrupted by ctx.
func (r *Recorder) Run(ctx context.Context) {
	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case u := <-r.ch:
			r.write(writeCtx, u)
		case <-ctx.Done():
			r.flush()
			return
		}
	}
}

func (r *Recorder) flush() {
	for {
		select {
		case u := <-r.ch:
			r.write(context.Background(), u)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, u meter.Update) {
	if err := r.repo.Insert(ctx, u); err != nil {
		r.log.Error("history: insert failed", "meter", u.Kind.String(), "error", err)
	}
}
