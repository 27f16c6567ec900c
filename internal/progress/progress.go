// Package progress reports how far each reconciliation operation has got.
package progress

import (
	"context"
	"math"

	"github.com/mediaoffload/offloader/internal/catalog"
	offerr "github.com/mediaoffload/offloader/internal/errors"
	"github.com/mediaoffload/offloader/internal/metrics"
	"github.com/mediaoffload/offloader/internal/migration"
)

// Progress is a point-in-time view of one operation.
type Progress struct {
	Operation  migration.Operation `json:"operation"`
	Total      int                 `json:"total"`
	Current    int                 `json:"current"`
	Percentage float64             `json:"percentage"`
}

// Tracker computes Progress from live catalog counts. It is read-only.
type Tracker struct {
	catalog catalog.Store
}

// NewTracker creates a Tracker over the catalog.
func NewTracker(store catalog.Store) *Tracker {
	return &Tracker{catalog: store}
}

// Poll returns the progress of op. Totals are recomputed on every call and
// may drift while a pass runs; the ReuploadMissing percentage can exceed 100.
func (t *Tracker) Poll(ctx context.Context, op migration.Operation) (*Progress, error) {
	if !op.Valid() {
		return nil, offerr.ErrInvalidOperation.WithMessage("unknown operation %q", op)
	}

	offloaded := catalog.Filter{State: catalog.StateOffloaded}
	var total, current int
	var err error
	switch op {
	case migration.Migrate:
		if total, err = t.catalog.CountAssets(ctx, catalog.Filter{}); err == nil {
			current, err = t.catalog.CountAssets(ctx, offloaded)
		}
	case migration.ReuploadMissing:
		if total, err = t.catalog.CountAssets(ctx, catalog.Filter{State: catalog.StateLocal}); err == nil {
			current, err = t.catalog.CountAssets(ctx, offloaded)
		}
	case migration.DeleteLocal:
		deleted := true
		if total, err = t.catalog.CountAssets(ctx, offloaded); err == nil {
			current, err = t.catalog.CountAssets(ctx, catalog.Filter{State: catalog.StateOffloaded, LocalDeleted: &deleted})
		}
	case migration.Revert:
		if total, err = t.catalog.CountAssets(ctx, offloaded); err == nil {
			var cp *catalog.Checkpoint
			if cp, err = t.catalog.GetCheckpoint(ctx, string(op)); err == nil && cp != nil {
				current = cp.Offset
			}
		}
	}
	if err != nil {
		return nil, offerr.ErrCatalogUnavailable.Wrap(err)
	}

	p := &Progress{Operation: op, Total: total, Current: current, Percentage: Percentage(current, total)}
	metrics.Progress.WithLabelValues(string(op)).Set(p.Percentage)
	return p, nil
}

// Percentage returns current*100/total rounded to two decimals, or 0 when
// total is zero.
func Percentage(current, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(current)*100/float64(total)*100) / 100
}
