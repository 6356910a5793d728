package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Settings table - key-value application state (camera grant etc.)
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Recording sessions - one row per resume cycle with recording enabled
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			graph TEXT NOT NULL DEFAULT '',
			camera_front INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME
		)`,

		// Pose samples - polled turn/tilt/nod values
		`CREATE TABLE IF NOT EXISTS pose_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			turn REAL NOT NULL,
			tilt REAL NOT NULL,
			nod REAL NOT NULL,
			timestamp_ms INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_pose_samples_session_id ON pose_samples(session_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
