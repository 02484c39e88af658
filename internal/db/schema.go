package db

import (
	"context"
	"fmt"
)

// schema is the record store DDL. Statements are idempotent so Migrate can
// run on every start.
var schema = `
CREATE TABLE IF NOT EXISTS providers (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	template_tag   TEXT,
	data           JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS templates (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	content        TEXT NOT NULL,
	contract_year  TEXT,
	version        TEXT,
	tags           TEXT[] NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS field_mappings (
	template_id          TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
	position             INTEGER NOT NULL,
	placeholder          TEXT NOT NULL,
	mapping_type         TEXT NOT NULL CHECK (mapping_type IN ('field', 'dynamic')),
	mapped_column        TEXT,
	mapped_dynamic_block TEXT,
	PRIMARY KEY (template_id, position)
);

CREATE TABLE IF NOT EXISTS dynamic_blocks (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	output_type     TEXT NOT NULL DEFAULT 'bullets',
	conditions      JSONB,
	always_include  JSONB,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS template_assignments (
	provider_id   TEXT PRIMARY KEY REFERENCES providers(id) ON DELETE CASCADE,
	template_id   TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS generation_runs (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	status        TEXT NOT NULL DEFAULT 'running',
	total         INTEGER NOT NULL DEFAULT 0,
	succeeded     INTEGER NOT NULL DEFAULT 0,
	skipped       INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	archive_key   TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS generation_logs (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	run_id         UUID NOT NULL,
	provider_id    TEXT NOT NULL,
	provider_name  TEXT NOT NULL DEFAULT '',
	template_id    TEXT,
	status         TEXT NOT NULL CHECK (status IN ('success', 'skipped', 'error')),
	file_name      TEXT,
	blob_key       TEXT,
	reason         TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_generation_logs_run ON generation_logs (run_id);
CREATE INDEX IF NOT EXISTS idx_generation_logs_page ON generation_logs (created_at DESC, id DESC);
`

// Migrate creates any missing tables.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
