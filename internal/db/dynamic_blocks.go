package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/contract-processor/internal/types"
)

// -----------------------------------------------------------------------------
// Dynamic Block Methods
// -----------------------------------------------------------------------------

// UpsertDynamicBlock inserts or replaces a dynamic block definition
func (db *DB) UpsertDynamicBlock(ctx context.Context, b *types.DynamicBlock) error {
	if b.ID == "" {
		return fmt.Errorf("dynamic block id is required")
	}
	outputType := b.OutputType
	if outputType == "" {
		outputType = types.OutputBullets
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO dynamic_blocks (id, name, output_type, conditions, always_include)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET name = $2, output_type = $3, conditions = $4, always_include = $5, updated_at = NOW()`,
		b.ID, b.Name, outputType, nullableJSON(b.Conditions), nullableJSON(b.AlwaysInclude),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert dynamic block %s: %w", b.ID, err)
	}
	return nil
}

// GetDynamicBlock retrieves a dynamic block definition by ID. Rule lists are
// returned as stored; they may hold arrays or serialized JSON text.
func (db *DB) GetDynamicBlock(ctx context.Context, id string) (*types.DynamicBlock, error) {
	var b types.DynamicBlock
	var conditions, alwaysInclude []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, output_type, conditions, always_include FROM dynamic_blocks WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.OutputType, &conditions, &alwaysInclude)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get dynamic block: %w", err)
	}
	b.Conditions = json.RawMessage(conditions)
	b.AlwaysInclude = json.RawMessage(alwaysInclude)
	return &b, nil
}

// ListDynamicBlockIDs retrieves every dynamic block ID
func (db *DB) ListDynamicBlockIDs(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx, `SELECT id FROM dynamic_blocks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dynamic blocks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan dynamic block id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// nullableJSON maps an empty document to SQL NULL.
func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
