// Package workers runs periodic maintenance next to the meter engine.
package workers

import (
	"context"
	"time"

	"horizonx-meter/internal/config"
	"horizonx-meter/internal/logger"
)

const cleanupInterval = time.Hour

var vacuumSchedule = DailySchedule{Hour: 3, Minute: 0}

type Manager struct {
	scheduler *Scheduler
	cfg       *config.Config
	log       logger.Logger

	history HistoryCleaner
}

// NewManager wires the maintenance workers. history may be nil when
// history storage is off.
func NewManager(scheduler *Scheduler, cfg *config.Config, log logger.Logger, history HistoryCleaner) *Manager {
	return &Manager{
		scheduler: scheduler,
		cfg:       cfg,
		log:       log,
		history:   history,
	}
}

// Start runs the cleanup once, then launches the periodic workers and
// returns. They stop with ctx.
func (m *Manager) Start(ctx context.Context) {
	m.log.Info("worker: manager started")

	if m.history != nil {
		cleanup := NewHistoryCleanupWorker(m.history, m.cfg.HistoryRetention, m.log)
		m.scheduler.run(ctx, cleanup)
		m.scheduler.RunByDuration(ctx, cleanupInterval, cleanup)
		m.scheduler.RunDaily(ctx, vacuumSchedule, NewHistoryVacuumWorker(m.history))
	}
}
