package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// History manages promotion history in SQLite
type History struct {
	db *sql.DB
}

// NewHistory creates a new history tracker
func NewHistory(dbPath string) (*History, error) {
	// Open database connection
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

// initSchema creates the database tables and indexes
func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS promotions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			attempt_id TEXT NOT NULL,
			build_name TEXT NOT NULL,
			build_number TEXT NOT NULL,
			target TEXT NOT NULL,
			status TEXT NOT NULL,
			status_code INTEGER NOT NULL,
			artifacts INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			duration_seconds REAL,
			user_name TEXT,
			message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Create index for efficient queries
	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_build_started
		ON promotions(build_name, started_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// RecordPromotion records a promotion attempt in the history
func (h *History) RecordPromotion(ctx context.Context, record *PromotionRecord) (int64, error) {
	now := time.Now().UTC()

	startedAt := record.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}
	completedAt := now
	if record.CompletedAt != nil {
		completedAt = *record.CompletedAt
	}

	status := record.Status
	if status == "" {
		status = StatusForCode(record.StatusCode)
	}

	result, err := h.db.ExecContext(ctx, `
		INSERT INTO promotions
		(attempt_id, build_name, build_number, target, status, status_code,
		 artifacts, started_at, completed_at, duration_seconds, user_name, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.AttemptID,
		record.BuildName,
		record.BuildNumber,
		record.Target,
		status,
		record.StatusCode,
		record.Artifacts,
		startedAt.UTC().Format(time.RFC3339Nano),
		completedAt.UTC().Format(time.RFC3339Nano),
		record.DurationSeconds,
		record.User,
		record.Message,
	)

	if err != nil {
		return 0, fmt.Errorf("failed to insert promotion record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

const selectColumns = `
	SELECT id, attempt_id, build_name, build_number, target, status, status_code,
	       artifacts, started_at, completed_at, duration_seconds, user_name, message
	FROM promotions`

// GetLatestPromotion returns the most recent promotion attempt for a build
// name, or nil when there is none
func (h *History) GetLatestPromotion(ctx context.Context, buildName string) (*PromotionRecord, error) {
	row := h.db.QueryRowContext(ctx, selectColumns+`
		WHERE build_name = ?
		ORDER BY id DESC
		LIMIT 1
	`, buildName)

	record, err := scanPromotionRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest promotion: %w", err)
	}

	return record, nil
}

// GetPromotionHistory returns promotion attempts for a build name, newest first
func (h *History) GetPromotionHistory(ctx context.Context, buildName string, limit int) ([]PromotionRecord, error) {
	rows, err := h.db.QueryContext(ctx, selectColumns+`
		WHERE build_name = ?
		ORDER BY id DESC
		LIMIT ?
	`, buildName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query promotion history: %w", err)
	}
	defer rows.Close()

	var records []PromotionRecord
	for rows.Next() {
		record, err := scanPromotionRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan promotion record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// GetAllBuildsStatus returns the latest promotion attempt for each build name
func (h *History) GetAllBuildsStatus(ctx context.Context) (map[string]*PromotionRecord, error) {
	rows, err := h.db.QueryContext(ctx, selectColumns+`
		WHERE id IN (SELECT MAX(id) FROM promotions GROUP BY build_name)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query all builds status: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*PromotionRecord)
	for rows.Next() {
		record, err := scanPromotionRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan promotion record: %w", err)
		}
		result[record.BuildName] = record
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...any) error
}

// scanPromotionRecord scans a database row into a PromotionRecord
// Works with both *sql.Row and *sql.Rows
func scanPromotionRecord(s scanner) (*PromotionRecord, error) {
	var record PromotionRecord
	var startedAtStr string
	var completedAtStr sql.NullString

	err := s.Scan(
		&record.ID,
		&record.AttemptID,
		&record.BuildName,
		&record.BuildNumber,
		&record.Target,
		&record.Status,
		&record.StatusCode,
		&record.Artifacts,
		&startedAtStr,
		&completedAtStr,
		&record.DurationSeconds,
		&record.User,
		&record.Message,
	)

	if err != nil {
		return nil, err
	}

	// Parse timestamps
	startedAt, err := time.Parse(time.RFC3339Nano, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	record.StartedAt = startedAt

	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339Nano, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		record.CompletedAt = &completedAt
	}

	return &record, nil
}
