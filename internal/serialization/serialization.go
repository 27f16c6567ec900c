// Package serialization handles catalog export/import between any catalog
// store and JSON.
package serialization

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mediaoffload/offloader/internal/catalog"
)

const (
	Version       = "0.1.0"
	ExportVersion = 1
)

// exportPageSize is the page size used to walk the catalog.
const exportPageSize = 500

// Envelope describes an export document.
type Envelope struct {
	Version    int    `json:"version"`
	ExportedAt string `json:"exported_at"`
	Source     string `json:"source"`
}

// Document is the JSON layout of an export.
type Document struct {
	Export      Envelope             `json:"offloader_export"`
	Assets      []catalog.Asset      `json:"assets"`
	Checkpoints []catalog.Checkpoint `json:"checkpoints,omitempty"`
}

// ExportOptions configures what to export.
type ExportOptions struct {
	// IncludeCheckpoints also exports live pass checkpoints.
	IncludeCheckpoints bool
}

// ImportOptions configures how to import.
type ImportOptions struct {
	// Replace deletes every existing asset and checkpoint first. Otherwise
	// assets whose ID already exists are skipped.
	Replace bool
}

// ImportResult holds the result of an import operation.
type ImportResult struct {
	Imported    int
	Skipped     int
	Checkpoints int
	Warnings    []string
}

// ExportCatalog writes the catalog to w as indented JSON, assets in catalog
// order.
func ExportCatalog(ctx context.Context, store catalog.Store, w io.Writer, opts *ExportOptions) error {
	if opts == nil {
		opts = &ExportOptions{}
	}

	doc := Document{
		Export: Envelope{
			Version:    ExportVersion,
			ExportedAt: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
			Source:     "go/" + Version,
		},
		Assets: make([]catalog.Asset, 0),
	}

	for offset := 0; ; offset += exportPageSize {
		page, err := store.ListAssets(ctx, catalog.Filter{}, offset, exportPageSize)
		if err != nil {
			return fmt.Errorf("listing assets: %w", err)
		}
		doc.Assets = append(doc.Assets, page...)
		if len(page) < exportPageSize {
			break
		}
	}

	if opts.IncludeCheckpoints {
		cps, err := store.ListCheckpoints(ctx)
		if err != nil {
			return fmt.Errorf("listing checkpoints: %w", err)
		}
		doc.Checkpoints = cps
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return nil
}

// ImportCatalog reads an export document from r into the catalog. Asset IDs
// and creation times are preserved.
func ImportCatalog(ctx context.Context, store catalog.Store, r io.Reader, opts *ImportOptions) (*ImportResult, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}

	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if doc.Export.Version < 1 || doc.Export.Version > ExportVersion {
		return nil, fmt.Errorf("unsupported export version: %v", doc.Export.Version)
	}

	if opts.Replace {
		if err := clearCatalog(ctx, store); err != nil {
			return nil, err
		}
	}

	result := &ImportResult{}
	for i := range doc.Assets {
		a := doc.Assets[i]
		if a.ID <= 0 {
			result.Skipped++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Skipped asset %q: missing id", a.PrimaryPath))
			continue
		}
		if !opts.Replace {
			existing, err := store.GetAsset(ctx, a.ID)
			if err != nil {
				return result, fmt.Errorf("checking asset %d: %w", a.ID, err)
			}
			if existing != nil {
				result.Skipped++
				continue
			}
		}
		if err := store.PutAsset(ctx, &a); err != nil {
			return result, fmt.Errorf("importing asset %d: %w", a.ID, err)
		}
		result.Imported++
	}

	now := time.Now()
	for i := range doc.Checkpoints {
		cp := doc.Checkpoints[i]
		if !cp.Live(now) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Skipped expired %s checkpoint", cp.Operation))
			continue
		}
		if err := store.PutCheckpoint(ctx, &cp); err != nil {
			return result, fmt.Errorf("importing %s checkpoint: %w", cp.Operation, err)
		}
		result.Checkpoints++
	}

	return result, nil
}

// clearCatalog removes every asset and checkpoint from the store.
func clearCatalog(ctx context.Context, store catalog.Store) error {
	cps, err := store.ListCheckpoints(ctx)
	if err != nil {
		return fmt.Errorf("listing checkpoints: %w", err)
	}
	for _, cp := range cps {
		if err := store.DeleteCheckpoint(ctx, cp.Operation); err != nil {
			return fmt.Errorf("deleting %s checkpoint: %w", cp.Operation, err)
		}
	}
	for {
		page, err := store.ListAssets(ctx, catalog.Filter{}, 0, exportPageSize)
		if err != nil {
			return fmt.Errorf("listing assets: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		for _, a := range page {
			if err := store.DeleteAsset(ctx, a.ID); err != nil {
				return fmt.Errorf("deleting asset %d: %w", a.ID, err)
			}
		}
	}
}
