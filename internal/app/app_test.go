package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mediaoffload/offloader/internal/catalog"
	"github.com/mediaoffload/offloader/internal/config"
	offerr "github.com/mediaoffload/offloader/internal/errors"
	"github.com/mediaoffload/offloader/internal/logging"
	"github.com/mediaoffload/offloader/internal/migration"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Assets.RootDir = filepath.Join(dir, "uploads")
	cfg.Catalog.Engine = "sqlite"
	cfg.Catalog.SQLite.Path = filepath.Join(dir, "data", "catalog.db")
	cfg.Migration.ItemPauseMS = -1
	return cfg
}

func TestNewWithoutStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "s3"
	cfg.Storage.S3.Bucket = ""

	a, err := New(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Store != nil || !offerr.Is(a.StoreErr, offerr.ErrNotConfigured) {
		t.Fatalf("store = %v, err = %v", a.Store, a.StoreErr)
	}
	_, err = a.Engine.Step(context.Background(), migration.StepRequest{Operation: migration.Migrate})
	if !offerr.Is(err, offerr.ErrNotConfigured) {
		t.Errorf("Step err = %v, want ErrNotConfigured", err)
	}
	if _, err := os.Stat(cfg.Catalog.SQLite.Path); err != nil {
		t.Errorf("catalog file not created: %v", err)
	}
}

func TestNewEndToEndWithLocalStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Storage.Backend = "local"
	cfg.Storage.Local.RootDir = filepath.Join(t.TempDir(), "bucket")
	cfg.Storage.PublicBaseURL = "https://cdn.example.com"

	if err := os.MkdirAll(filepath.Join(cfg.Assets.RootDir, "2024"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"photo.jpg", "photo-150x150.jpg"} {
		if err := os.WriteFile(filepath.Join(cfg.Assets.RootDir, "2024", name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	a, err := New(ctx, cfg, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if a.Store == nil {
		t.Fatalf("store not configured: %v", a.StoreErr)
	}

	res, err := a.Scanner.Import(ctx, a.Catalog, false)
	if err != nil || res.Imported != 1 {
		t.Fatalf("Import = %+v, %v", res, err)
	}
	if _, err := a.Engine.Run(ctx, migration.Migrate, migration.RunOptions{}); err != nil {
		t.Fatal(err)
	}

	n, err := a.Catalog.CountAssets(ctx, catalog.Filter{State: catalog.StateOffloaded})
	if err != nil || n != 1 {
		t.Fatalf("offloaded = %d, %v", n, err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.Local.RootDir, "2024", "photo-150x150.jpg")); err != nil {
		t.Errorf("variant not in bucket: %v", err)
	}

	p, err := a.Tracker.Poll(ctx, migration.Migrate)
	if err != nil || p.Percentage != 100 {
		t.Errorf("progress = %+v, %v", p, err)
	}

	if _, err := a.Server(); err != nil {
		t.Errorf("Server(): %v", err)
	}
}

func TestNewLeavesPartialDownloads(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Join(cfg.Assets.RootDir, "2024")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(dir, ".a.jpg.tmp-old")
	fresh := filepath.Join(dir, ".b.jpg.tmp-new")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("partial"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * cfg.Migration.CheckpointTTLDuration())
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	a, err := New(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if _, err := os.Stat(stale); err != nil {
		t.Fatalf("New swept the asset root: %v", err)
	}

	n, err := a.CleanPartialDownloads()
	if err != nil || n != 1 {
		t.Fatalf("CleanPartialDownloads = %d, %v; want 1, nil", n, err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh temp file removed: %v", err)
	}
}
