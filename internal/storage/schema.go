package storage

import (
	"context"
	"fmt"
	"strings"
)

// schemaStatements is the DDL shared by both dialects. {{TS}} is replaced
// with the dialect's timestamp type.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		name                 TEXT PRIMARY KEY,
		display_name         TEXT NOT NULL DEFAULT '',
		models               TEXT NOT NULL DEFAULT '[]',
		priority             INTEGER NOT NULL DEFAULT 100,
		rate_limit_rpm       INTEGER NOT NULL DEFAULT 0,
		enabled              BOOLEAN NOT NULL DEFAULT TRUE,
		encrypted_credential TEXT NOT NULL DEFAULT '',
		config               TEXT NOT NULL DEFAULT '{}',
		pricing              TEXT NOT NULL DEFAULT '{}',
		created_at           {{TS}} NOT NULL,
		updated_at           {{TS}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customer_overrides (
		user_id       TEXT PRIMARY KEY,
		provider_name TEXT NOT NULL,
		model_name    TEXT NOT NULL DEFAULT '',
		created_at    {{TS}} NOT NULL,
		updated_at    {{TS}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS usage_logs (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		service_name  TEXT NOT NULL,
		task_type     TEXT NOT NULL DEFAULT '',
		provider_name TEXT NOT NULL DEFAULT '',
		model         TEXT NOT NULL DEFAULT '',
		input_tokens  INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cost_usd      DOUBLE PRECISION NOT NULL DEFAULT 0,
		cached        BOOLEAN NOT NULL DEFAULT FALSE,
		latency_ms    BIGINT NOT NULL DEFAULT 0,
		error         TEXT NULL,
		created_at    {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_logs_created_at ON usage_logs (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_logs_user_id ON usage_logs (user_id)`,
}

// Migrate creates the gateway tables when they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if db.driver == DriverSQLite {
		ts = "TIMESTAMP"
	}

	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, strings.ReplaceAll(stmt, "{{TS}}", ts)); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
