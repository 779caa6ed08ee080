package repository

import (
	"context"
	"fmt"
)

// Ключ advisory lock: параллельные инстансы применяют миграции по очереди
const migrationLockID = 715_2026

type migration struct {
	version    int
	name       string
	statements []string
}

var postgresMigrations = []migration{
	{
		version: 1,
		name:    "create_short_links",
		statements: []string{
			`CREATE TABLE short_links (
				code         VARCHAR(16) PRIMARY KEY,
				target_url   TEXT        NOT NULL,
				owner        TEXT        NOT NULL DEFAULT '',
				resource_key TEXT        NOT NULL DEFAULT '',
				display_name TEXT        NOT NULL DEFAULT '',
				created_at   TIMESTAMPTZ NOT NULL,
				expires_at   TIMESTAMPTZ,
				click_count  BIGINT      NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX idx_short_links_owner_created ON short_links (owner, created_at DESC)`,
			`CREATE INDEX idx_short_links_target_owner ON short_links (target_url, owner)`,
			`CREATE INDEX idx_short_links_expires_at ON short_links (expires_at) WHERE expires_at IS NOT NULL`,
		},
	},
	{
		version: 2,
		name:    "create_user_accounts",
		statements: []string{
			`CREATE TABLE user_accounts (
				user_id          TEXT        PRIMARY KEY,
				email            TEXT        NOT NULL UNIQUE,
				tier             VARCHAR(16) NOT NULL DEFAULT 'Free',
				trial_used       BOOLEAN     NOT NULL DEFAULT FALSE,
				trial_started_at TIMESTAMPTZ,
				trial_expires_at TIMESTAMPTZ,
				created_at       TIMESTAMPTZ NOT NULL,
				updated_at       TIMESTAMPTZ NOT NULL,
				CONSTRAINT user_accounts_tier_check CHECK (tier IN ('Free', 'Trial', 'Premium')),
				CONSTRAINT user_accounts_trial_window_check CHECK ((trial_started_at IS NULL) = (trial_expires_at IS NULL))
			)`,
			`CREATE INDEX idx_user_accounts_trial_expiry ON user_accounts (trial_expires_at) WHERE tier = 'Trial'`,
		},
	},
}

// Migrate применяет недостающие миграции в одной транзакции
func (db *PostgresDB) Migrate(ctx context.Context) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INT         PRIMARY KEY,
			name       TEXT        NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}

	for _, m := range postgresMigrations {
		if applied[m.version] {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			m.version, m.name,
		); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
	}

	return tx.Commit(ctx)
}
