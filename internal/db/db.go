// Package db provides PostgreSQL access to the contract record store.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Run status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusCancelled = "cancelled"
	RunStatusFailed    = "failed"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping checks the connection
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Run is a bulk generation run record
type Run struct {
	ID          uuid.UUID  `json:"id"`
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	Succeeded   int        `json:"succeeded"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	ArchiveKey  string     `json:"archive_key,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunSummary carries the final counts of a run
type RunSummary struct {
	Status     string
	Succeeded  int
	Skipped    int
	Failed     int
	ArchiveKey string
}

// CreateRun creates a new generation run record with the given ID
func (db *DB) CreateRun(ctx context.Context, runID uuid.UUID, total int) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO generation_runs (id, status, total)
		 VALUES ($1, $2, $3)`,
		runID, RunStatusRunning, total,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// CompleteRun records the final state of a generation run
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, summary RunSummary) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE generation_runs
		 SET status = $1, succeeded = $2, skipped = $3, failed = $4,
		     archive_key = NULLIF($5, ''), completed_at = NOW()
		 WHERE id = $6`,
		summary.Status, summary.Succeeded, summary.Skipped, summary.Failed, summary.ArchiveKey, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRun retrieves a generation run by ID
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	var archiveKey *string
	err := db.pool.QueryRow(ctx,
		`SELECT id, status, total, succeeded, skipped, failed, archive_key, created_at, completed_at
		 FROM generation_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.Status, &run.Total, &run.Succeeded, &run.Skipped, &run.Failed,
		&archiveKey, &run.CreatedAt, &run.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if archiveKey != nil {
		run.ArchiveKey = *archiveKey
	}
	return &run, nil
}

// ListRuns retrieves recent generation runs
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, status, total, succeeded, skipped, failed, COALESCE(archive_key, ''), created_at, completed_at
		 FROM generation_runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Status, &run.Total, &run.Succeeded, &run.Skipped, &run.Failed,
			&run.ArchiveKey, &run.CreatedAt, &run.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
