package store

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	up          func(*sql.Tx) error
	description string
	version     int
}

var migrations = []migration{
	{
		version:     1,
		description: "Initial schema",
		up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					created_at TEXT NOT NULL,
					image_dir TEXT NOT NULL,
					detector TEXT NOT NULL,
					thresholds TEXT NOT NULL,
					images INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX idx_runs_created_at ON runs(created_at)`,

				`CREATE TABLE IF NOT EXISTS results (
					run_id TEXT NOT NULL,
					threshold REAL NOT NULL,
					tpr REAL NOT NULL,
					tnr REAL NOT NULL,
					true_positive INTEGER NOT NULL,
					true_negative INTEGER NOT NULL,
					unfit INTEGER NOT NULL,
					fit INTEGER NOT NULL,
					PRIMARY KEY (run_id, threshold),
					FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
				)`,

				`CREATE TABLE IF NOT EXISTS records (
					run_id TEXT NOT NULL,
					image_file TEXT NOT NULL,
					true_label TEXT NOT NULL,
					total_boxes INTEGER NOT NULL,
					normal_boxes INTEGER NOT NULL,
					error TEXT NOT NULL DEFAULT '',
					PRIMARY KEY (run_id, image_file),
					FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
				)`,
			}
			for _, q := range queries {
				if _, err := tx.Exec(q); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

// SchemaVersion is the schema version after all migrations.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

func (s *Store) migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := m.up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}

		s.logger.Debug("applied migration", "version", m.version, "description", m.description)
	}
	return nil
}
