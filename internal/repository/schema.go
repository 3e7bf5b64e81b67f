package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS medication_catalog (
		id VARCHAR(255) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		position INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_medication_catalog_name ON medication_catalog (name, position)`,
	`CREATE TABLE IF NOT EXISTS user_medications (
		id UUID PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		medication_id VARCHAR(255) NOT NULL,
		medication_ref VARCHAR(512) NOT NULL,
		name VARCHAR(255) NOT NULL,
		dose_mg INTEGER NOT NULL,
		frequency_hours INTEGER NOT NULL,
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		prescription_id VARCHAR(255) NOT NULL,
		source_file VARCHAR(255) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_medications_prescription ON user_medications (user_id, prescription_id)`,
	`CREATE TABLE IF NOT EXISTS pharmacies (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		chain VARCHAR(255) NOT NULL DEFAULT '',
		opening_hours TEXT[] NOT NULL DEFAULT '{}',
		opening_days TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		operation_type VARCHAR(50) NOT NULL,
		resource_type VARCHAR(100) NOT NULL,
		resource_id VARCHAR(255) NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		ip_address VARCHAR(100) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		additional_data JSONB
	)`,
}

// Migrate creates the tables used by the Postgres store. It is idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, m := range migrations {
		if _, err := db.Exec(ctx, m); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
