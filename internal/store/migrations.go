package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the history tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS batches (
		id           TEXT PRIMARY KEY,
		tick         INTEGER NOT NULL UNIQUE,
		valid_until  INTEGER,
		task_count   INTEGER NOT NULL DEFAULT 0,
		published_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS directives (
		batch_id     TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		task_id      INTEGER NOT NULL,
		new_priority INTEGER NOT NULL,
		PRIMARY KEY (batch_id, task_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_batches_published_at ON batches(published_at)`,
	`CREATE INDEX IF NOT EXISTS idx_directives_task_id ON directives(task_id)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
