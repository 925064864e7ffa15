// Package sqlite persists meter updates for the history endpoint.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"horizonx-meter/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

func NewSqliteDB(dbPath string, log logger.Logger) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database not responding: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Info("sqlite connection established", "path", dbPath)

	if err := runMigration(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func runMigration(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS meter_samples (
		id INTEGER PRIMARY KEY,
		kind TEXT NOT NULL,
		percent REAL NOT NULL,
		has_activity INTEGER NOT NULL,
		payload TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_meter_samples_kind_time ON meter_samples (kind, recorded_at);
	`
	_, err := db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to migrate meter_samples table: %w", err)
	}
	return nil
}
