// Package app assembles the offloader components from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mediaoffload/offloader/internal/asset"
	"github.com/mediaoffload/offloader/internal/catalog"
	"github.com/mediaoffload/offloader/internal/config"
	offerr "github.com/mediaoffload/offloader/internal/errors"
	"github.com/mediaoffload/offloader/internal/migration"
	"github.com/mediaoffload/offloader/internal/progress"
	"github.com/mediaoffload/offloader/internal/server"
	"github.com/mediaoffload/offloader/internal/storage"
)

// App holds the wired components. Build it once with New and pass it down.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Catalog  catalog.Store
	Resolver *asset.Resolver
	Scanner  *asset.Scanner
	Engine   *migration.Engine
	Tracker  *progress.Tracker

	// Store is nil when object storage is not configured; StoreErr says why.
	Store    storage.ObjectStore
	StoreErr error
}

// New opens the catalog and object store and builds the engine. An object
// store that is missing settings or fails to connect is not fatal: the
// operations that need it report ErrNotConfigured.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cat, err := catalog.Open(ctx, cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	logger.Info("Catalog opened", "engine", cfg.Catalog.Engine)

	resolver, err := asset.NewResolver(cfg.Assets.RootDir, cat)
	if err != nil {
		cat.Close()
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Catalog:  cat,
		Resolver: resolver,
		Scanner:  &asset.Scanner{Root: resolver.Root()},
		Tracker:  progress.NewTracker(cat),
	}

	if err := config.ValidateStorage(cfg.Storage); err != nil {
		a.StoreErr = err
		logger.Warn("Object storage not configured", "error", err)
	} else if store, err := storage.New(ctx, cfg.Storage); err != nil {
		a.StoreErr = offerr.ErrNotConfigured.Wrap(err)
		logger.Warn("Object storage unavailable", "backend", cfg.Storage.Backend, "error", err)
	} else {
		a.Store = store
		logger.Info("Object storage initialized", "backend", cfg.Storage.Backend)
	}

	a.Engine = migration.NewEngine(migration.Deps{
		Catalog:  cat,
		Resolver: resolver,
		Store:    a.Store,
		StoreErr: a.StoreErr,
		Logger:   logger,
	}, migration.OptionsFromConfig(cfg))
	return a, nil
}

// Server builds the HTTP server over the app's components.
func (a *App) Server() (*server.Server, error) {
	return server.New(a.Config,
		server.WithCatalog(a.Catalog),
		server.WithResolver(a.Resolver),
		server.WithEngine(a.Engine),
		server.WithTracker(a.Tracker),
		server.WithObjectStore(a.Store, a.StoreErr),
	)
}

// CleanPartialDownloads removes temp files that interrupted downloads left
// under the asset root. Files younger than the checkpoint TTL may belong to a
// step still running in another process and are kept.
func (a *App) CleanPartialDownloads() (int, error) {
	n, err := storage.CleanPartialDownloads(a.Resolver.Root(), a.Config.Migration.CheckpointTTLDuration())
	if err != nil {
		return n, err
	}
	if n > 0 {
		a.Logger.Info("Removed partial downloads", "count", n)
	}
	return n, nil
}

// Close releases the catalog.
func (a *App) Close() error {
	return a.Catalog.Close()
}
