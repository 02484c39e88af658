package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/contract-processor/internal/types"
)

// -----------------------------------------------------------------------------
// Provider Methods
// -----------------------------------------------------------------------------

// UpsertProvider inserts or replaces a provider record
func (db *DB) UpsertProvider(ctx context.Context, p *types.Provider) error {
	if p.ID == "" {
		return fmt.Errorf("provider id is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal provider: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO providers (id, name, template_tag, data)
		 VALUES ($1, $2, NULLIF($3, ''), $4)
		 ON CONFLICT (id) DO UPDATE
		 SET name = $2, template_tag = NULLIF($3, ''), data = $4, updated_at = NOW()`,
		p.ID, p.Name, p.TemplateTag, data,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert provider %s: %w", p.ID, err)
	}
	return nil
}

// GetProvider retrieves a provider by ID
func (db *DB) GetProvider(ctx context.Context, id string) (*types.Provider, error) {
	var data []byte
	err := db.pool.QueryRow(ctx, `SELECT data FROM providers WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return decodeProvider(data)
}

// ListProviders retrieves providers. With ids set, the result follows the
// order of ids and silently omits unknown ids; otherwise all providers are
// returned ordered by name.
func (db *DB) ListProviders(ctx context.Context, ids []string) ([]types.Provider, error) {
	var rows pgx.Rows
	var err error
	if len(ids) > 0 {
		rows, err = db.pool.Query(ctx,
			`SELECT p.data
			 FROM unnest($1::text[]) WITH ORDINALITY AS wanted(id, ord)
			 JOIN providers p ON p.id = wanted.id
			 ORDER BY wanted.ord`,
			ids,
		)
	} else {
		rows, err = db.pool.Query(ctx, `SELECT data FROM providers ORDER BY name, id`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []types.Provider
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		p, err := decodeProvider(data)
		if err != nil {
			return nil, err
		}
		providers = append(providers, *p)
	}
	return providers, rows.Err()
}

func decodeProvider(data []byte) (*types.Provider, error) {
	var p types.Provider
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal provider: %w", err)
	}
	return &p, nil
}
