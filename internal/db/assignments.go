package db

import (
	"context"
	"fmt"
)

// -----------------------------------------------------------------------------
// Template Assignment Methods
// -----------------------------------------------------------------------------

// SetTemplateAssignment manually assigns a template to a provider
func (db *DB) SetTemplateAssignment(ctx context.Context, providerID, templateID string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO template_assignments (provider_id, template_id)
		 VALUES ($1, $2)
		 ON CONFLICT (provider_id) DO UPDATE SET template_id = $2, updated_at = NOW()`,
		providerID, templateID,
	)
	if err != nil {
		return fmt.Errorf("failed to set template assignment: %w", err)
	}
	return nil
}

// ClearTemplateAssignment removes a manual assignment
func (db *DB) ClearTemplateAssignment(ctx context.Context, providerID string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM template_assignments WHERE provider_id = $1`, providerID)
	if err != nil {
		return fmt.Errorf("failed to clear template assignment: %w", err)
	}
	return nil
}

// ListTemplateAssignments returns provider ID to template ID overrides
func (db *DB) ListTemplateAssignments(ctx context.Context) (map[string]string, error) {
	rows, err := db.pool.Query(ctx, `SELECT provider_id, template_id FROM template_assignments`)
	if err != nil {
		return nil, fmt.Errorf("failed to list template assignments: %w", err)
	}
	defer rows.Close()

	assignments := make(map[string]string)
	for rows.Next() {
		var providerID, templateID string
		if err := rows.Scan(&providerID, &templateID); err != nil {
			return nil, fmt.Errorf("failed to scan template assignment: %w", err)
		}
		assignments[providerID] = templateID
	}
	return assignments, rows.Err()
}
