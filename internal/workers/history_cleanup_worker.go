package workers

import (
	"context"
	"fmt"
	"time"

	"horizonx-meter/internal/logger"
)

type HistoryCleaner interface {
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)
	Vacuum(ctx context.Context) error
}

// HistoryCleanupWorker deletes history older than the retention window.
type HistoryCleanupWorker struct {
	repo      HistoryCleaner
	retention time.Duration
	now       func() time.Time
	log       logger.Logger
}

func NewHistoryCleanupWorker(repo HistoryCleaner, retention time.Duration, log logger.Logger) *HistoryCleanupWorker {
	return &HistoryCleanupWorker{repo: repo, retention: retention, now: time.Now, log: log}
}

func (w *HistoryCleanupWorker) Name() string {
	return "history_cleanup"
}

func (w *HistoryCleanupWorker) Run(ctx context.Context) error {
	if w.retention <= 0 {
		return nil
	}

	cutoff := w.now().Add(-w.retention)
	n, err := w.repo.Cleanup(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up history: %w", err)
	}

	if n > 0 {
		w.log.Info("history cleaned up", "deleted", n, "cutoff", cutoff)
	}
	return nil
}

// HistoryVacuumWorker compacts the history database.
type HistoryVacuumWorker struct {
	repo HistoryCleaner
}

func NewHistoryVacuumWorker(repo HistoryCleaner) *HistoryVacuumWorker {
	return &HistoryVacuumWorker{repo: repo}
}

func (w *HistoryVacuumWorker) Name() string {
	return "history_vacuum"
}

func (w *HistoryVacuumWorker) Run(ctx context.Context) error {
	return w.repo.Vacuum(ctx)
}
