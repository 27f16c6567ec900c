package migration

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/mediaoffload/offloader/internal/asset"
	"github.com/mediaoffload/offloader/internal/catalog"
	offerr "github.com/mediaoffload/offloader/internal/errors"
	"github.com/mediaoffload/offloader/internal/metrics"
	"github.com/mediaoffload/offloader/internal/storage"
)

// offloadAsset uploads the asset's files and sets the remote marker. With
// strict set every variant must exist locally; otherwise missing variants are
// skipped and only the primary is required.
func (e *Engine) offloadAsset(ctx context.Context, a *catalog.Asset, strict bool) error {
	g, err := e.resolver.Group(a)
	if err != nil {
		return err
	}

	files := g.Files()
	if !strict {
		if !fileExists(g.Primary.Path) {
			return fmt.Errorf("primary file %s is missing", g.Primary.Key)
		}
		present := []asset.File{g.Primary}
		for _, f := range g.Variants {
			if fileExists(f.Path) {
				present = append(present, f)
				continue
			}
			e.logger.Warn("variant missing, not uploaded", "asset_id", a.ID, "key", f.Key, "variant", f.Variant)
		}
		files = present
	}

	for _, f := range files {
		n, err := e.store.PutObject(ctx, f.Key, f.Path)
		metrics.ObserveFile("upload", n, err)
		if err != nil {
			return fmt.Errorf("uploading %s: %w", f.Key, err)
		}
	}

	url := e.remoteURL(g.Primary.Key)
	if err := e.catalog.MarkOffloaded(ctx, a.ID, url); err != nil {
		return fmt.Errorf("marking asset offloaded: %w", err)
	}
	e.logger.Info("asset offloaded", "asset_id", a.ID, "url", url, "files", len(files))

	if !e.opts.KeepLocal {
		// The asset has already left the selection; a cleanup failure here
		// must not be reported as an item failure.
		if err := e.removeLocal(ctx, a, g); err != nil {
			e.logger.Warn("local cleanup failed", "asset_id", a.ID, "error", err)
		}
	}
	return nil
}

// removeLocal deletes every local file of the group, prunes the directory if
// it became empty and records LocalDeletedAt.
func (e *Engine) removeLocal(ctx context.Context, a *catalog.Asset, g *asset.Group) error {
	removed := 0
	var errs []error
	for _, f := range g.Files() {
		ok, err := removeFile(f.Path)
		if err != nil {
			metrics.ObserveFile("delete", 0, err)
			errs = append(errs, fmt.Errorf("removing %s: %w", f.Key, err))
			continue
		}
		if ok {
			metrics.ObserveFile("delete", 0, nil)
			removed++
		}
	}

	if dir := filepath.Dir(g.Primary.Path); dir != e.resolver.Root() {
		RemoveDirIfEmpty(dir)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if a.LocalDeletedAt != nil && removed == 0 {
		return nil
	}
	if err := e.catalog.MarkLocalDeleted(ctx, a.ID, e.now()); err != nil {
		return fmt.Errorf("marking local copy deleted: %w", err)
	}
	return nil
}

// revertAsset restores missing local files from the object store and clears
// the remote marker.
func (e *Engine) revertAsset(ctx context.Context, a *catalog.Asset) error {
	g, err := e.resolver.Group(a)
	if err != nil {
		if e.opts.RevertRequireAllFiles {
			return err
		}
		e.logger.Warn("asset unresolvable, clearing marker", "asset_id", a.ID, "error", err)
		return e.catalog.MarkReverted(ctx, a.ID)
	}

	files := g.Files()
	failed := 0
	for _, f := range files {
		if fileExists(f.Path) {
			continue
		}
		if err := e.restore(ctx, f); err != nil {
			failed++
			e.logger.Warn("restore failed", "asset_id", a.ID, "key", f.Key, "error", err)
		}
	}

	if failed > 0 && e.opts.RevertRequireAllFiles {
		return fmt.Errorf("%d of %d files not restored", failed, len(files))
	}
	if err := e.catalog.MarkReverted(ctx, a.ID); err != nil {
		return fmt.Errorf("clearing remote marker: %w", err)
	}
	e.logger.Info("asset reverted", "asset_id", a.ID, "missing", failed)
	return nil
}

func (e *Engine) restore(ctx context.Context, f asset.File) error {
	if e.store == nil {
		return e.requireStore(false)
	}
	n, err := storage.Download(ctx, e.store, f.Key, f.Path)
	metrics.ObserveFile("download", n, err)
	return err
}

// deleteLocal removes the local copy of an offloaded asset. The remote marker
// stays.
func (e *Engine) deleteLocal(ctx context.Context, a *catalog.Asset) error {
	g, err := e.resolver.Group(a)
	if err != nil {
		return err
	}
	return e.removeLocal(ctx, a, g)
}

// Offload runs the Migrate action for a single asset and returns the updated
// record.
func (e *Engine) Offload(ctx context.Context, id int64) (*catalog.Asset, error) {
	if err := e.requireStore(true); err != nil {
		return nil, err
	}
	a, err := e.getAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.offloadAsset(ctx, a, true); err != nil {
		metrics.AssetsTotal.WithLabelValues(string(Migrate), "failed").Inc()
		return nil, err
	}
	metrics.AssetsTotal.WithLabelValues(string(Migrate), "ok").Inc()
	return e.getAsset(ctx, id)
}

// Forget deletes an asset's objects from the store and clears its remote
// marker. It refuses when the only copy is remote.
func (e *Engine) Forget(ctx context.Context, id int64) (*catalog.Asset, error) {
	if err := e.requireStore(false); err != nil {
		return nil, err
	}
	a, err := e.getAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	g, err := e.resolver.Group(a)
	if err != nil {
		return nil, err
	}
	if a.Offloaded() && !fileExists(g.Primary.Path) {
		return nil, offerr.ErrInvalidArgument.WithMessage(
			"asset %d has no local copy; revert it before removing remote objects", id)
	}

	for _, f := range g.Files() {
		err := e.store.DeleteObject(ctx, f.Key)
		metrics.ObserveFile("delete_remote", 0, err)
		if err != nil {
			return nil, fmt.Errorf("deleting object %s: %w", f.Key, err)
		}
	}
	if a.Offloaded() {
		if err := e.catalog.MarkReverted(ctx, id); err != nil {
			return nil, offerr.ErrCatalogUnavailable.Wrap(err)
		}
	}
	e.logger.Info("remote copy removed", "asset_id", id)
	return e.getAsset(ctx, id)
}

func (e *Engine) getAsset(ctx context.Context, id int64) (*catalog.Asset, error) {
	a, err := e.catalog.GetAsset(ctx, id)
	if err != nil {
		return nil, offerr.ErrCatalogUnavailable.Wrap(err)
	}
	if a == nil {
		return nil, offerr.ErrAssetNotFound.WithMessage("asset %d not found", id)
	}
	return a, nil
}
