package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables if they are absent. Column constraints encode
// the ownership model: collected data and summaries cascade with their
// cycle, and a cycle carries at most one summary.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS cycles (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		config_snapshot JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		error_message TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cycles_status ON cycles (status)`,
	`CREATE INDEX IF NOT EXISTS idx_cycles_created_at ON cycles (created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS collected_data (
		id UUID PRIMARY KEY,
		cycle_id UUID NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
		source_index INTEGER NOT NULL DEFAULT 0,
		source_type TEXT NOT NULL,
		source_name TEXT,
		item_count INTEGER NOT NULL DEFAULT 0,
		data_size_bytes INTEGER,
		collection_time_ms BIGINT,
		data JSONB,
		error TEXT,
		collected_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_collected_data_cycle ON collected_data (cycle_id, source_index)`,
	`CREATE INDEX IF NOT EXISTS idx_collected_data_source_type ON collected_data (source_type)`,

	`CREATE TABLE IF NOT EXISTS summaries (
		id UUID PRIMARY KEY,
		cycle_id UUID NOT NULL UNIQUE REFERENCES cycles(id) ON DELETE CASCADE,
		llm_provider TEXT NOT NULL,
		model_name TEXT NOT NULL,
		summary_text TEXT NOT NULL,
		summary_word_count INTEGER NOT NULL DEFAULT 0,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cost_usd NUMERIC(12, 6),
		generation_time_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS source_configs (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		source_type TEXT NOT NULL,
		credential_ref TEXT NOT NULL,
		collect_spec JSONB NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_source_configs_type_enabled ON source_configs (source_type, enabled)`,
}

// Migrate applies the schema statements in order.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
