package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	offerr "github.com/mediaoffload/offloader/internal/errors"
)

// MemoryStore implements Store with in-memory maps. Useful for tests and
// dry runs; nothing survives a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	assets      map[int64]Asset
	checkpoints map[string]Checkpoint
	maxID       int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:      make(map[int64]Asset),
		checkpoints: make(map[string]Checkpoint),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func cloneAsset(a Asset) Asset {
	if a.Variants != nil {
		a.Variants = append([]Variant(nil), a.Variants...)
	}
	if a.LocalDeletedAt != nil {
		t := *a.LocalDeletedAt
		a.LocalDeletedAt = &t
	}
	return a
}

// PutAsset inserts or replaces an asset.
func (s *MemoryStore) PutAsset(ctx context.Context, a *Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Millisecond)
	if a.ID == 0 {
		a.ID = s.maxID + 1
	}
	if existing, ok := s.assets[a.ID]; ok {
		a.CreatedAt = existing.CreatedAt
	} else if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.ID > s.maxID {
		s.maxID = a.ID
	}
	s.assets[a.ID] = cloneAsset(*a)
	return nil
}

// GetAsset retrieves an asset by ID.
func (s *MemoryStore) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, nil
	}
	cp := cloneAsset(a)
	return &cp, nil
}

// FindAssetByPath retrieves the first asset with the given primary path.
func (s *MemoryStore) FindAssetByPath(ctx context.Context, primaryPath string) (*Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.sortedLocked(Filter{}) {
		if a.PrimaryPath == primaryPath {
			cp := cloneAsset(a)
			return &cp, nil
		}
	}
	return nil, nil
}

// DeleteAsset removes an asset record.
func (s *MemoryStore) DeleteAsset(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assets, id)
	return nil
}

func (f Filter) matches(a *Asset) bool {
	switch f.State {
	case StateLocal:
		if a.RemoteURL != "" {
			return false
		}
	case StateOffloaded:
		if a.RemoteURL == "" {
			return false
		}
	}
	if f.RequirePrimary && a.PrimaryPath == "" {
		return false
	}
	if f.LocalDeleted != nil && *f.LocalDeleted != (a.LocalDeletedAt != nil) {
		return false
	}
	return true
}

// sortedLocked returns matching assets in insertion order. Caller holds mu.
func (s *MemoryStore) sortedLocked(f Filter) []Asset {
	out := make([]Asset, 0, len(s.assets))
	for _, a := range s.assets {
		if f.matches(&a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListAssets returns one page of matching assets in stable order.
func (s *MemoryStore) ListAssets(ctx context.Context, f Filter, offset, limit int) ([]Asset, error) {
	if offset < 0 || limit <= 0 {
		return nil, offerr.ErrInvalidArgument.WithMessage("invalid page: offset=%d limit=%d", offset, limit)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sortedLocked(f)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page := make([]Asset, 0, end-offset)
	for _, a := range all[offset:end] {
		page = append(page, cloneAsset(a))
	}
	return page, nil
}

// CountAssets counts matching assets.
func (s *MemoryStore) CountAssets(ctx context.Context, f Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.assets {
		if f.matches(&a) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) update(id int64, fn func(a *Asset)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return offerr.ErrAssetNotFound.WithMessage("asset %d not found", id)
	}
	fn(&a)
	a.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	s.assets[id] = a
	return nil
}

// MarkOffloaded sets the remote URL marker.
func (s *MemoryStore) MarkOffloaded(ctx context.Context, id int64, remoteURL string) error {
	return s.update(id, func(a *Asset) { a.RemoteURL = remoteURL })
}

// MarkReverted clears the remote URL marker and the local-deleted time.
func (s *MemoryStore) MarkReverted(ctx context.Context, id int64) error {
	return s.update(id, func(a *Asset) {
		a.RemoteURL = ""
		a.LocalDeletedAt = nil
	})
}

// MarkLocalDeleted records that local copies were purged.
func (s *MemoryStore) MarkLocalDeleted(ctx context.Context, id int64, at time.Time) error {
	return s.update(id, func(a *Asset) {
		t := at.UTC().Truncate(time.Millisecond)
		a.LocalDeletedAt = &t
	})
}

// GetCheckpoint returns the live checkpoint for operation.
func (s *MemoryStore) GetCheckpoint(ctx context.Context, operation string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.checkpoints[operation]
	if !ok || !c.Live(time.Now()) {
		return nil, nil
	}
	return &c, nil
}

// PutCheckpoint inserts or replaces a checkpoint.
func (s *MemoryStore) PutCheckpoint(ctx context.Context, c *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[c.Operation] = *c
	return nil
}

// DeleteCheckpoint removes a checkpoint.
func (s *MemoryStore) DeleteCheckpoint(ctx context.Context, operation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, operation)
	return nil
}

// ListCheckpoints returns every live checkpoint ordered by operation.
func (s *MemoryStore) ListCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	var out []Checkpoint
	for _, c := range s.checkpoints {
		if c.Live(now) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
