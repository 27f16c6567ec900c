// Package migration implements the resumable batch reconciliation passes that
// move assets between the local asset root and the object store.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mediaoffload/offloader/internal/asset"
	"github.com/mediaoffload/offloader/internal/catalog"
	"github.com/mediaoffload/offloader/internal/config"
	offerr "github.com/mediaoffload/offloader/internal/errors"
	"github.com/mediaoffload/offloader/internal/metrics"
	"github.com/mediaoffload/offloader/internal/storage"
	"github.com/mediaoffload/offloader/internal/uid"
)

// Options tunes an Engine.
type Options struct {
	// PublicBaseURL prefixes object keys to form the remote URL marker.
	PublicBaseURL string
	// KeepLocal keeps local files after a successful offload.
	KeepLocal bool
	// PageSizes holds the default page size per operation.
	PageSizes map[Operation]int
	// CheckpointTTL is how long an idle pass stays resumable.
	CheckpointTTL time.Duration
	// ItemPause is slept between assets within a page.
	ItemPause time.Duration
	// RevertRequireAllFiles clears the marker on revert only when every
	// missing file was restored.
	RevertRequireAllFiles bool
	// Exclusive refuses a step while another operation holds a live checkpoint.
	Exclusive bool
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	m := cfg.Migration
	return Options{
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		KeepLocal:     cfg.Storage.KeepLocal,
		PageSizes: map[Operation]int{
			Migrate:         m.MigratePageSize,
			Revert:          m.RevertPageSize,
			ReuploadMissing: m.ReuploadPageSize,
			DeleteLocal:     m.DeleteLocalPageSize,
		},
		CheckpointTTL:         m.CheckpointTTLDuration(),
		ItemPause:             m.ItemPause(),
		RevertRequireAllFiles: m.RevertRequireAllFiles == nil || *m.RevertRequireAllFiles,
		Exclusive:             m.Exclusive == nil || *m.Exclusive,
	}
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Catalog  catalog.Store
	Resolver *asset.Resolver
	// Store may be nil when object storage is not configured; StoreErr then
	// explains why.
	Store    storage.ObjectStore
	StoreErr error
	Logger   *slog.Logger
}

// Engine runs reconciliation steps. It keeps no state between calls other
// than what it persists in the catalog.
type Engine struct {
	catalog  catalog.Store
	resolver *asset.Resolver
	store    storage.ObjectStore
	storeErr error
	opts     Options
	logger   *slog.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// NewEngine creates an Engine.
func NewEngine(deps Deps, opts Options) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CheckpointTTL <= 0 {
		opts.CheckpointTTL = time.Hour
	}
	return &Engine{
		catalog:  deps.Catalog,
		resolver: deps.Resolver,
		store:    deps.Store,
		storeErr: deps.StoreErr,
		opts:     opts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    time.Sleep,
	}
}

// StepRequest asks for one page of an operation.
type StepRequest struct {
	Operation Operation `json:"operation"`
	// Offset is the running count of assets processed in this pass. Zero
	// starts a new pass.
	Offset int `json:"offset"`
	// PageSize of zero uses the pass's pinned size, or the configured default.
	PageSize int `json:"page_size"`
}

// StepResult reports the outcome of one step.
type StepResult struct {
	// Processed is the offset to pass to the next step.
	Processed int  `json:"processed"`
	Complete  bool `json:"complete"`
	// Failed counts assets in this page whose action failed.
	Failed int `json:"failed"`
}

// Step processes one page of the operation. Per-asset failures are logged and
// counted but never returned; an error means no page was processed.
func (e *Engine) Step(ctx context.Context, req StepRequest) (*StepResult, error) {
	start := time.Now()
	res, err := e.step(ctx, req)

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case res.Complete:
		status = "complete"
	}
	if req.Operation.Valid() {
		metrics.StepsTotal.WithLabelValues(string(req.Operation), status).Inc()
		metrics.StepDuration.WithLabelValues(string(req.Operation)).Observe(time.Since(start).Seconds())
	}
	return res, err
}

func (e *Engine) step(ctx context.Context, req StepRequest) (*StepResult, error) {
	op := req.Operation
	if !op.Valid() {
		return nil, offerr.ErrInvalidOperation.WithMessage("unknown operation %q", op)
	}
	if req.Offset < 0 {
		return nil, offerr.ErrInvalidArgument.WithMessage("offset must not be negative, got %d", req.Offset)
	}
	if req.PageSize < 0 {
		return nil, offerr.ErrInvalidArgument.WithMessage("page size must not be negative, got %d", req.PageSize)
	}
	if err := e.precondition(op); err != nil {
		return nil, err
	}
	if e.opts.Exclusive {
		if err := e.checkConflict(ctx, op); err != nil {
			return nil, err
		}
	}

	cp, err := e.beginStep(ctx, op, req.Offset, req.PageSize)
	if err != nil {
		return nil, err
	}

	skip := req.Offset
	if op.shrinking() {
		skip = cp.Skipped
	}
	page, err := e.catalog.ListAssets(ctx, op.filter(), skip, cp.PageSize)
	if err != nil {
		return nil, offerr.ErrCatalogUnavailable.Wrap(fmt.Errorf("listing %s page: %w", op, err))
	}

	if len(page) == 0 {
		if err := e.catalog.DeleteCheckpoint(ctx, string(op)); err != nil {
			return nil, offerr.ErrCatalogUnavailable.Wrap(err)
		}
		e.logger.Info("pass complete", "operation", op, "processed", req.Offset, "owner", cp.Owner)
		return &StepResult{Processed: req.Offset, Complete: true}, nil
	}

	// In-flight assets run to completion even if the caller goes away.
	itemCtx := context.WithoutCancel(ctx)
	failed := 0
	for i := range page {
		if i > 0 && e.opts.ItemPause > 0 {
			e.sleep(e.opts.ItemPause)
		}
		if err := e.runItem(itemCtx, op, &page[i]); err != nil {
			failed++
		}
	}

	if op.shrinking() && failed > 0 {
		cp.Skipped += failed
		cp.UpdatedAt = e.now()
		if err := e.catalog.PutCheckpoint(itemCtx, cp); err != nil {
			return nil, offerr.ErrCatalogUnavailable.Wrap(err)
		}
	}

	res := &StepResult{Processed: req.Offset + len(page), Failed: failed}
	e.logger.Debug("step done",
		"operation", op, "offset", req.Offset, "processed", res.Processed,
		"failed", failed, "skipped", cp.Skipped)
	return res, nil
}

// precondition fails operations that need an object store when none is
// configured.
func (e *Engine) precondition(op Operation) error {
	if !op.needsStore() {
		return nil
	}
	return e.requireStore(true)
}

func (e *Engine) requireStore(needURL bool) error {
	if e.store == nil {
		if e.storeErr != nil {
			if offerr.Is(e.storeErr, offerr.ErrNotConfigured) {
				return e.storeErr
			}
			return offerr.ErrNotConfigured.Wrap(e.storeErr)
		}
		return offerr.ErrNotConfigured.WithMessage("object storage is not configured")
	}
	if needURL && e.opts.PublicBaseURL == "" {
		return offerr.ErrNotConfigured.WithMessage("object storage is not configured: missing public_base_url")
	}
	return nil
}

func (e *Engine) checkConflict(ctx context.Context, op Operation) error {
	live, err := e.catalog.ListCheckpoints(ctx)
	if err != nil {
		return offerr.ErrCatalogUnavailable.Wrap(err)
	}
	for _, c := range live {
		if c.Operation != string(op) {
			return offerr.ErrOperationConflict.WithMessage(
				"a %s pass is in progress (offset %d, expires %s)",
				c.Operation, c.Offset, c.ExpiresAt.Format(time.RFC3339))
		}
	}
	return nil
}

// beginStep loads or starts the pass checkpoint and records the step offset.
func (e *Engine) beginStep(ctx context.Context, op Operation, offset, pageSize int) (*catalog.Checkpoint, error) {
	cp, err := e.catalog.GetCheckpoint(ctx, string(op))
	if err != nil {
		return nil, offerr.ErrCatalogUnavailable.Wrap(err)
	}

	now := e.now()
	if offset == 0 || cp == nil {
		if pageSize == 0 {
			pageSize = e.defaultPageSize(op)
		}
		cp = &catalog.Checkpoint{
			Operation: string(op),
			Owner:     uid.RunID(),
			PageSize:  pageSize,
			StartedAt: now,
		}
		e.logger.Info("pass started", "operation", op, "offset", offset, "page_size", pageSize, "owner", cp.Owner)
	} else if pageSize != 0 && pageSize != cp.PageSize {
		return nil, offerr.ErrPageSizeChanged.WithMessage(
			"%s pass started with page size %d, got %d; restart from offset 0 or reset the checkpoint",
			op, cp.PageSize, pageSize)
	}

	cp.Offset = offset
	cp.UpdatedAt = now
	cp.ExpiresAt = now.Add(e.opts.CheckpointTTL)
	if err := e.catalog.PutCheckpoint(ctx, cp); err != nil {
		return nil, offerr.ErrCatalogUnavailable.Wrap(err)
	}
	return cp, nil
}

func (e *Engine) defaultPageSize(op Operation) int {
	if n := e.opts.PageSizes[op]; n > 0 {
		return n
	}
	if op == Migrate {
		return 5
	}
	return 10
}

// runItem runs the operation's action for one asset, turning panics into
// errors so one asset cannot abort the page.
func (e *Engine) runItem(ctx context.Context, op Operation, a *catalog.Asset) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			metrics.AssetsTotal.WithLabelValues(string(op), "failed").Inc()
			e.logger.Warn("asset skipped", "operation", op, "asset_id", a.ID, "error", err)
			return
		}
		metrics.AssetsTotal.WithLabelValues(string(op), "ok").Inc()
	}()

	switch op {
	case Migrate:
		return e.offloadAsset(ctx, a, true)
	case ReuploadMissing:
		return e.offloadAsset(ctx, a, false)
	case Revert:
		return e.revertAsset(ctx, a)
	case DeleteLocal:
		return e.deleteLocal(ctx, a)
	}
	return offerr.ErrInvalidOperation.WithMessage("unknown operation %q", op)
}

// ResetCheckpoint discards the operation's checkpoint.
func (e *Engine) ResetCheckpoint(ctx context.Context, op Operation) error {
	if !op.Valid() {
		return offerr.ErrInvalidOperation.WithMessage("unknown operation %q", op)
	}
	if err := e.catalog.DeleteCheckpoint(ctx, string(op)); err != nil {
		return offerr.ErrCatalogUnavailable.Wrap(err)
	}
	e.logger.Info("checkpoint reset", "operation", op)
	return nil
}

// RunOptions configures Run.
type RunOptions struct {
	From     int
	PageSize int
	// OnStep, if set, is called after every step.
	OnStep func(*StepResult)
}

// Run issues steps until the pass completes or ctx is cancelled. Cancellation
// is checked between steps only.
func (e *Engine) Run(ctx context.Context, op Operation, opts RunOptions) (*StepResult, error) {
	offset := opts.From
	var last *StepResult
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		res, err := e.Step(ctx, StepRequest{Operation: op, Offset: offset, PageSize: opts.PageSize})
		if err != nil {
			return last, err
		}
		last = res
		if opts.OnStep != nil {
			opts.OnStep(res)
		}
		if res.Complete {
			return res, nil
		}
		offset = res.Processed
	}
}

// remoteURL joins the public base URL and an object key.
func (e *Engine) remoteURL(key string) string {
	return strings.TrimRight(e.opts.PublicBaseURL, "/") + "/" + key
}
