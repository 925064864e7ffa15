package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"horizonx-meter/internal/meter"
)

const defaultListLimit = 1000

type ListOptions struct {
	Since time.Time
	Limit int
}

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Insert(ctx context.Context, u meter.Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}

	query := `INSERT INTO meter_samples (kind, percent, has_activity, payload, recorded_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, u.Kind.String(), u.Percent, u.HasActivity, string(payload), u.RecordedAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// List returns the updates of kind recorded at or after opts.Since, oldest
// first.
func (r *HistoryRepository) List(ctx context.Context, kind meter.Kind, opts ListOptions) ([]meter.Update, error) {
	limit := opts.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	query := `SELECT payload FROM meter_samples WHERE kind = ? AND recorded_at >= ? ORDER BY recorded_at ASC, id ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, kind.String(), opts.Since.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	updates := []meter.Update{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}

		var u meter.Update
		if err := json.Unmarshal([]byte(payload), &u); err != nil {
			return nil, fmt.Errorf("failed to decode sample: %w", err)
		}
		updates = append(updates, u)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return updates, nil
}

// Cleanup deletes samples recorded before cutoff and returns how many.
func (r *HistoryRepository) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM meter_samples WHERE recorded_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to execute cleanup query: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve affected rows: %w", err)
	}
	return n, nil
}

// Vacuum returns space freed by deleted samples to the filesystem.
func (r *HistoryRepository) Vacuum(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}
