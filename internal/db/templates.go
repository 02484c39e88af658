package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/contract-processor/internal/types"
)

// -----------------------------------------------------------------------------
// Template Methods
// -----------------------------------------------------------------------------

const templateColumns = `id, name, content, COALESCE(contract_year, ''), COALESCE(version, ''), tags, updated_at`

// UpsertTemplate inserts or replaces a template
func (db *DB) UpsertTemplate(ctx context.Context, t *types.Template) error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO templates (id, name, content, contract_year, version, tags)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		 ON CONFLICT (id) DO UPDATE
		 SET name = $2, content = $3, contract_year = NULLIF($4, ''), version = NULLIF($5, ''),
		     tags = $6, updated_at = NOW()`,
		t.ID, t.Name, t.Content, t.ContractYear, t.Version, tags,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert template %s: %w", t.ID, err)
	}
	return nil
}

// GetTemplate retrieves a template by ID
func (db *DB) GetTemplate(ctx context.Context, id string) (*types.Template, error) {
	var t types.Template
	err := db.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Content, &t.ContractYear, &t.Version, &t.Tags, &t.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return &t, nil
}

// ListTemplates retrieves all templates ordered by name
func (db *DB) ListTemplates(ctx context.Context) ([]types.Template, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []types.Template
	for rows.Next() {
		var t types.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Content, &t.ContractYear, &t.Version, &t.Tags, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// ListFieldMappings retrieves a template's mappings in declaration order.
// A template without mappings yields nil.
func (db *DB) ListFieldMappings(ctx context.Context, templateID string) ([]types.FieldMapping, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT placeholder, mapping_type, COALESCE(mapped_column, ''), COALESCE(mapped_dynamic_block, '')
		 FROM field_mappings WHERE template_id = $1 ORDER BY position`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list field mappings: %w", err)
	}
	defer rows.Close()

	var mappings []types.FieldMapping
	for rows.Next() {
		var m types.FieldMapping
		if err := rows.Scan(&m.Placeholder, &m.MappingType, &m.MappedColumn, &m.MappedDynamicBlock); err != nil {
			return nil, fmt.Errorf("failed to scan field mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// ReplaceFieldMappings validates and stores a template's full mapping list
// in one transaction.
func (db *DB) ReplaceFieldMappings(ctx context.Context, templateID string, mappings []types.FieldMapping) error {
	if err := types.ValidateMappings(mappings); err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM field_mappings WHERE template_id = $1`, templateID); err != nil {
			return fmt.Errorf("failed to clear field mappings: %w", err)
		}

		batch := &pgx.Batch{}
		for i, m := range mappings {
			batch.Queue(
				`INSERT INTO field_mappings (template_id, position, placeholder, mapping_type, mapped_column, mapped_dynamic_block)
				 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`,
				templateID, i, m.Placeholder, m.MappingType, m.MappedColumn, m.MappedDynamicBlock,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert field mappings: %w", err)
		}
		return nil
	})
}
