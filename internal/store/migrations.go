package store

import (
	"fmt"
)

// migrate runs all pending migrations
func (s *Store) migrate() error {
	createMigrationsTableSQL := `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`

	if _, err := s.db.Exec(createMigrationsTableSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	s.logger.Debug("current schema version", "version", currentVersion)

	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql: `
				CREATE TABLE import_runs (
					id TEXT PRIMARY KEY,
					file_name TEXT NOT NULL,
					status TEXT DEFAULT 'running',
					records INTEGER DEFAULT 0,
					batches INTEGER DEFAULT 0,
					batches_completed INTEGER DEFAULT 0,
					batches_rejected INTEGER DEFAULT 0,
					batches_failed INTEGER DEFAULT 0,
					start_time DATETIME NOT NULL,
					end_time DATETIME,
					error_message TEXT DEFAULT ''
				);

				CREATE INDEX idx_import_runs_start ON import_runs(start_time);

				CREATE TABLE import_batches (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id TEXT NOT NULL,
					batch_index INTEGER NOT NULL,
					size INTEGER DEFAULT 0,
					outcome TEXT NOT NULL,
					message TEXT DEFAULT '',
					attempts INTEGER DEFAULT 0,
					duration_ms INTEGER DEFAULT 0,
					UNIQUE(run_id, batch_index),
					FOREIGN KEY(run_id) REFERENCES import_runs(id)
				);
			`,
		},
	}

	for _, mig := range migrations {
		if mig.version > currentVersion {
			s.logger.Info("running migration", "version", mig.version)

			if err := s.runMigration(mig.version, mig.sql); err != nil {
				return fmt.Errorf("failed to run migration %d: %w", mig.version, err)
			}
		}
	}

	return nil
}

// runMigration executes a migration and records it
func (s *Store) runMigration(version int, sql string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	return nil
}
