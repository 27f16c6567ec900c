package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mediaoffload/offloader/internal/config"
)

// Open creates the Store selected by cfg.Engine.
func Open(ctx context.Context, cfg config.CatalogConfig) (Store, error) {
	switch cfg.Engine {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating catalog directory %q: %w", dir, err)
			}
		}
		return NewSQLiteStore(cfg.SQLite.Path)
	case "postgres", "postgresql":
		if cfg.Postgres.DSN == "" {
			return nil, fmt.Errorf("catalog.postgres.dsn is required")
		}
		return NewPostgresStore(ctx, cfg.Postgres.DSN)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown catalog engine %q", cfg.Engine)
	}
}
