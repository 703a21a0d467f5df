package db

import (
	"context"
	"fmt"
)

// migration is one ordered schema change. Migrations only ever append;
// editing an applied migration corrupts existing databases.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create_tasks",
		sql: `
			CREATE TABLE IF NOT EXISTS tasks (
				id TEXT PRIMARY KEY,
				name TEXT,
				parent_id TEXT,
				depends_json TEXT,
				status TEXT NOT NULL DEFAULT 'todo',
				duration_days INTEGER NOT NULL DEFAULT 1,
				due_date TEXT,
				created_at TEXT,
				last_status_update TEXT,
				priority TEXT,
				owner TEXT,
				blockers_json TEXT,
				tags_json TEXT,
				url TEXT,
				raw_json TEXT,
				position INTEGER NOT NULL DEFAULT 0,
				fetched_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);
			CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
		`,
	},
	{
		version: 2,
		name:    "create_events",
		sql: `
			CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				timestamp TEXT NOT NULL,
				type TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				payload_json TEXT,
				metadata_json TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_type, entity_id);
			CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
		`,
	},
}

// MigrateUp applies pending migrations and returns how many ran.
func (db *DB) MigrateUp(ctx context.Context) (int, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.version,
		).Scan(&exists)
		if err != nil {
			return applied, fmt.Errorf("failed to check migration %d: %w", m.version, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name,
		); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}

		db.logger.Debug().Int("version", m.version).Str("name", m.name).Msg("migration applied")
		applied++
	}

	return applied, nil
}
