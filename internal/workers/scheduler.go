package workers

import (
	"context"
	"sync"
	"time"

	"horizonx-meter/internal/logger"
)

type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

type DailySchedule struct {
	Hour   int
	Minute int
}

// Next returns the first occurrence of the schedule strictly after now.
func (d DailySchedule) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), d.Hour, d.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

type Scheduler struct {
	log logger.Logger
	wg  sync.WaitGroup
}

func NewScheduler(log logger.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// RunByDuration runs worker every dur until ctx is done.
func (s *Scheduler) RunByDuration(ctx context.Context, dur time.Duration, worker Worker) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(dur)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.run(ctx, worker)
			}
		}
	}()
}

// RunDaily runs worker once a day at the scheduled local time.
func (s *Scheduler) RunDaily(ctx context.Context, schedule DailySchedule, worker Worker) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(time.Until(schedule.Next(time.Now())))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				s.run(ctx, worker)
				timer.Reset(time.Until(schedule.Next(time.Now())))
			}
		}
	}()
}

// Wait blocks until every started worker loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, worker Worker) {
	start := time.Now()

	if err := worker.Run(ctx); err != nil {
		s.log.Error("worker failed", "name", worker.Name(), "error", err)
	}

	s.log.Debug("worker finished", "name", worker.Name(), "time", time.Since(start))
}
