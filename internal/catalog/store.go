// Package catalog defines the persistent catalog of assets and their remote
// state, plus the run checkpoints the migration engine keeps between steps.
package catalog

import (
	"context"
	"io"
	"time"
)

// Variant is a derived size of an asset, stored next to the primary file.
type Variant struct {
	// Name is the host's size name, e.g. "thumbnail" or "medium".
	Name string `json:"name"`
	// File is the base name of the variant within the primary's directory.
	File     string `json:"file"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Asset is one catalog record: a primary file and its variants.
type Asset struct {
	ID int64 `json:"id"`
	// PrimaryPath is relative to the asset root. Empty means unknown.
	PrimaryPath string    `json:"primary_path"`
	Variants    []Variant `json:"variants"`
	// RemoteURL is the offload marker. Empty means the asset is local.
	RemoteURL string `json:"remote_url,omitempty"`
	// LocalDeletedAt is set once local copies were purged after offload.
	LocalDeletedAt *time.Time `json:"local_deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Offloaded reports whether the asset carries a remote URL marker.
func (a *Asset) Offloaded() bool { return a.RemoteURL != "" }

// State selects assets by migration state.
type State int

const (
	// StateAny matches every asset.
	StateAny State = iota
	// StateLocal matches assets without a remote URL.
	StateLocal
	// StateOffloaded matches assets with a remote URL.
	StateOffloaded
)

// Filter is an existence predicate over catalog records.
type Filter struct {
	State State
	// RequirePrimary excludes assets whose primary path is unknown.
	RequirePrimary bool
	// LocalDeleted, when non-nil, matches on whether LocalDeletedAt is set.
	LocalDeleted *bool
}

// Checkpoint is the resumable state of one reconciliation pass.
type Checkpoint struct {
	Operation string `json:"operation"`
	// Owner identifies the pass.
	Owner string `json:"owner"`
	// Offset is the offset of the most recently started step.
	Offset int `json:"offset"`
	// Skipped counts failed items left behind by this pass.
	Skipped   int       `json:"skipped"`
	PageSize  int       `json:"page_size"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Live reports whether the checkpoint has not yet expired at now.
func (c *Checkpoint) Live(now time.Time) bool { return now.Before(c.ExpiresAt) }

// Store is the catalog state store. Listing is ordered by insertion time,
// then by ID. Getters return nil, nil when the record does not exist.
// All methods must be safe for concurrent use.
type Store interface {
	io.Closer

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// PutAsset inserts or replaces an asset. An ID of 0 is assigned by the
	// store and written back. CreatedAt is preserved on replace.
	PutAsset(ctx context.Context, a *Asset) error
	GetAsset(ctx context.Context, id int64) (*Asset, error)
	FindAssetByPath(ctx context.Context, primaryPath string) (*Asset, error)
	DeleteAsset(ctx context.Context, id int64) error

	// ListAssets returns up to limit matching assets after skipping offset.
	ListAssets(ctx context.Context, f Filter, offset, limit int) ([]Asset, error)
	CountAssets(ctx context.Context, f Filter) (int, error)

	// MarkOffloaded sets the remote URL marker.
	MarkOffloaded(ctx context.Context, id int64, remoteURL string) error
	// MarkReverted clears the remote URL marker and LocalDeletedAt.
	MarkReverted(ctx context.Context, id int64) error
	// MarkLocalDeleted records that local copies were purged.
	MarkLocalDeleted(ctx context.Context, id int64, at time.Time) error

	// GetCheckpoint returns the live checkpoint for operation, or nil when
	// absent or expired.
	GetCheckpoint(ctx context.Context, operation string) (*Checkpoint, error)
	PutCheckpoint(ctx context.Context, c *Checkpoint) error
	DeleteCheckpoint(ctx context.Context, operation string) error
	// ListCheckpoints returns every live checkpoint.
	ListCheckpoints(ctx context.Context) ([]Checkpoint, error)
}
