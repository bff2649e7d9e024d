package store

import "fmt"

// migrate creates all tables if they don't exist.
func (s *SQLiteStore) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			external_id    TEXT UNIQUE NOT NULL,
			display_name   TEXT,
			email          TEXT,
			created_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_active_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS batches (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL REFERENCES users(id),
			batch_name       TEXT,
			status           TEXT NOT NULL CHECK(status IN ('processing','completed','failed')),
			raw_keywords     TEXT NOT NULL,
			cleaned_keywords TEXT NOT NULL,
			keyword_count    INTEGER NOT NULL,
			source_type      TEXT,
			error_message    TEXT,
			created_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at     DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS clusters (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id       TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
			cluster_number INTEGER NOT NULL,
			cluster_name   TEXT NOT NULL,
			keywords       TEXT NOT NULL,
			keyword_count  INTEGER NOT NULL,
			idea_title     TEXT,
			idea_json      TEXT,
			outline_json   TEXT,
			created_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(batch_id, cluster_number)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_batches_user ON batches(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_clusters_batch ON clusters(batch_id, cluster_number)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}
