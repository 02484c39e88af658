package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/contract-processor/internal/types"
)

// -----------------------------------------------------------------------------
// Generation Log Methods
// -----------------------------------------------------------------------------

const generationLogColumns = `id, run_id, provider_id, provider_name, COALESCE(template_id, ''), status,
	COALESCE(file_name, ''), COALESCE(blob_key, ''), COALESCE(reason, ''), created_at, updated_at`

func scanGenerationLog(row pgx.Row, l *types.GenerationLog) error {
	return row.Scan(&l.ID, &l.RunID, &l.ProviderID, &l.ProviderName, &l.TemplateID, &l.Status,
		&l.FileName, &l.BlobKey, &l.Reason, &l.CreatedAt, &l.UpdatedAt)
}

// CreateGenerationLog inserts a log entry. A zero ID gets a new UUID;
// timestamps are filled in on l.
func (db *DB) CreateGenerationLog(ctx context.Context, l *types.GenerationLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO generation_logs (id, run_id, provider_id, provider_name, template_id, status, file_name, blob_key, reason)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''))
		 RETURNING created_at, updated_at`,
		l.ID, l.RunID, l.ProviderID, l.ProviderName, l.TemplateID, l.Status, l.FileName, l.BlobKey, l.Reason,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create generation log: %w", err)
	}
	return nil
}

// UpdateGenerationLog updates the outcome fields of an existing entry
func (db *DB) UpdateGenerationLog(ctx context.Context, l *types.GenerationLog) error {
	err := db.pool.QueryRow(ctx,
		`UPDATE generation_logs
		 SET status = $1, file_name = NULLIF($2, ''), blob_key = NULLIF($3, ''), reason = NULLIF($4, ''), updated_at = NOW()
		 WHERE id = $5
		 RETURNING updated_at`,
		l.Status, l.FileName, l.BlobKey, l.Reason, l.ID,
	).Scan(&l.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return fmt.Errorf("generation log not found: %s", l.ID)
		}
		return fmt.Errorf("failed to update generation log: %w", err)
	}
	return nil
}

// GetGenerationLog retrieves a log entry by ID
func (db *DB) GetGenerationLog(ctx context.Context, id uuid.UUID) (*types.GenerationLog, error) {
	var l types.GenerationLog
	row := db.pool.QueryRow(ctx, `SELECT `+generationLogColumns+` FROM generation_logs WHERE id = $1`, id)
	if err := scanGenerationLog(row, &l); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get generation log: %w", err)
	}
	return &l, nil
}

// DeleteGenerationLog deletes a log entry. It reports whether a row existed.
func (db *DB) DeleteGenerationLog(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := db.pool.Exec(ctx, `DELETE FROM generation_logs WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete generation log: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListGenerationLogs returns one page of log entries, newest first.
// NextPageToken is empty on the last page.
func (db *DB) ListGenerationLogs(ctx context.Context, filter types.GenerationLogFilter) (*types.GenerationLogPage, error) {
	limit := clampPageSize(filter.Limit)

	query := `SELECT ` + generationLogColumns + ` FROM generation_logs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.RunID != uuid.Nil {
		query += fmt.Sprintf(" AND run_id = $%d", argNum)
		args = append(args, filter.RunID)
		argNum++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filter.Status)
		argNum++
	}
	if filter.PageToken != "" {
		cursor, err := decodePageToken(filter.PageToken)
		if err != nil {
			return nil, err
		}
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argNum, argNum+1)
		args = append(args, cursor.CreatedAt, cursor.ID)
		argNum += 2
	}

	// One extra row tells whether another page exists
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argNum)
	args = append(args, limit+1)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list generation logs: %w", err)
	}
	defer rows.Close()

	page := &types.GenerationLogPage{Logs: []types.GenerationLog{}}
	for rows.Next() {
		var l types.GenerationLog
		if err := scanGenerationLog(rows, &l); err != nil {
			return nil, fmt.Errorf("failed to scan generation log: %w", err)
		}
		page.Logs = append(page.Logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list generation logs: %w", err)
	}

	if len(page.Logs) > limit {
		page.Logs = page.Logs[:limit]
		last := page.Logs[limit-1]
		page.NextPageToken = encodePageToken(pageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

// CountGenerationLogs returns the number of log entries per status for a run
func (db *DB) CountGenerationLogs(ctx context.Context, runID uuid.UUID) (map[string]int, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM generation_logs WHERE run_id = $1 GROUP BY status`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count generation logs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan generation log count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
