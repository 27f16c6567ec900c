package catalog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore implements Store using SQLite. It is the default catalog for
// single-node deployments.
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore opens the SQLite database at dsn and initializes the schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}

	// One connection keeps the PRAGMAs in effect and serializes writers in
	// this process; busy_timeout covers writers in other processes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{sqlStore{db: db}}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite database: %w", err)
	}
	return s, nil
}

// initDB applies PRAGMAs and creates the required tables and indexes.
// This is safe to call multiple times (idempotent via IF NOT EXISTS).
func (s *SQLiteStore) initDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS assets (
			id               INTEGER PRIMARY KEY,
			primary_path     TEXT NOT NULL DEFAULT '',
			variants         TEXT NOT NULL DEFAULT '[]',
			remote_url       TEXT NOT NULL DEFAULT '',
			local_deleted_at TEXT,
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_assets_order ON assets(created_at, id);
		CREATE INDEX IF NOT EXISTS idx_assets_remote ON assets(remote_url);
		CREATE INDEX IF NOT EXISTS idx_assets_path ON assets(primary_path);

		CREATE TABLE IF NOT EXISTS checkpoints (
			operation   TEXT PRIMARY KEY,
			owner       TEXT NOT NULL,
			step_offset INTEGER NOT NULL DEFAULT 0,
			skipped     INTEGER NOT NULL DEFAULT 0,
			page_size   INTEGER NOT NULL,
			started_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,
			expires_at  TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
