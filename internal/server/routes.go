package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/mediaoffload/offloader/internal/asset"
	"github.com/mediaoffload/offloader/internal/catalog"
	offerr "github.com/mediaoffload/offloader/internal/errors"
	"github.com/mediaoffload/offloader/internal/migration"
	"github.com/mediaoffload/offloader/internal/progress"

	"github.com/danielgtaylor/huma/v2"
)

// HealthCheck is the status of one dependency.
type HealthCheck struct {
	Status string `json:"status" example:"ok" doc:"ok, not_configured or error"`
	Error  string `json:"error,omitempty"`
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string                 `json:"status" example:"ok" doc:"Health status"`
	Checks map[string]HealthCheck `json:"checks,omitempty"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Status int
	Body   HealthBody
}

func (s *Server) health(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	out := &HealthOutput{Status: http.StatusOK, Body: HealthBody{Status: "ok", Checks: map[string]HealthCheck{}}}

	if s.catalog != nil {
		if err := s.catalog.Ping(ctx); err != nil {
			out.Status = http.StatusServiceUnavailable
			out.Body.Status = "degraded"
			out.Body.Checks["catalog"] = HealthCheck{Status: "error", Error: err.Error()}
		} else {
			out.Body.Checks["catalog"] = HealthCheck{Status: "ok"}
		}
	}

	switch {
	case s.store == nil && s.storeErr != nil:
		out.Body.Checks["storage"] = HealthCheck{Status: "not_configured", Error: s.storeErr.Error()}
	case s.store != nil:
		if err := s.store.HealthCheck(ctx); err != nil {
			out.Body.Checks["storage"] = HealthCheck{Status: "error", Error: err.Error()}
		} else {
			out.Body.Checks["storage"] = HealthCheck{Status: "ok"}
		}
	}
	return out, nil
}

// StepInput is the request for one reconciliation step.
type StepInput struct {
	Operation string `path:"operation" doc:"migrate, revert, reupload_missing or delete_local"`
	Body      *struct {
		Offset   int `json:"offset,omitempty" doc:"Running processed count; 0 or absent starts a new pass"`
		PageSize int `json:"page_size,omitempty" doc:"Assets per page; 0 uses the pinned or configured size"`
	}
}

// StepOutput is the result of one step.
type StepOutput struct {
	Body *migration.StepResult
}

// OperationInput names an operation in the path.
type OperationInput struct {
	Operation string `path:"operation"`
}

// ProgressOutput is the progress of one operation.
type ProgressOutput struct {
	Body *progress.Progress
}

func (s *Server) registerOperationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "run-step",
		Method:      http.MethodPost,
		Path:        "/v1/operations/{operation}/step",
		Summary:     "Process one page",
		Tags:        []string{"Operations"},
	}, s.step)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-progress",
		Method:      http.MethodGet,
		Path:        "/v1/operations/{operation}/progress",
		Summary:     "Poll progress",
		Tags:        []string{"Operations"},
	}, s.progress)

	huma.Register(s.api, huma.Operation{
		OperationID:   "reset-checkpoint",
		Method:        http.MethodDelete,
		Path:          "/v1/operations/{operation}/checkpoint",
		Summary:       "Discard the pass checkpoint",
		Tags:          []string{"Operations"},
		DefaultStatus: http.StatusNoContent,
	}, s.resetCheckpoint)
}

func (s *Server) step(ctx context.Context, in *StepInput) (*StepOutput, error) {
	if s.engine == nil {
		return nil, apiError(offerr.ErrInternal.WithMessage("migration engine not available"))
	}
	op, err := migration.ParseOperation(in.Operation)
	if err != nil {
		return nil, apiError(err)
	}

	lock, _ := s.running.LoadOrStore(op, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, apiError(offerr.ErrOperationConflict.WithMessage("a %s step is already running", op))
	}
	defer mu.Unlock()

	req := migration.StepRequest{Operation: op}
	if in.Body != nil {
		req.Offset = in.Body.Offset
		req.PageSize = in.Body.PageSize
	}
	res, err := s.engine.Step(ctx, req)
	if err != nil {
		return nil, apiError(err)
	}
	return &StepOutput{Body: res}, nil
}

func (s *Server) progress(ctx context.Context, in *OperationInput) (*ProgressOutput, error) {
	if s.tracker == nil {
		return nil, apiError(offerr.ErrInternal.WithMessage("progress tracker not available"))
	}
	op, err := migration.ParseOperation(in.Operation)
	if err != nil {
		return nil, apiError(err)
	}
	p, err := s.tracker.Poll(ctx, op)
	if err != nil {
		return nil, apiError(err)
	}
	return &ProgressOutput{Body: p}, nil
}

func (s *Server) resetCheckpoint(ctx context.Context, in *OperationInput) (*struct{}, error) {
	if s.engine == nil {
		return nil, apiError(offerr.ErrInternal.WithMessage("migration engine not available"))
	}
	op, err := migration.ParseOperation(in.Operation)
	if err != nil {
		return nil, apiError(err)
	}
	if err := s.engine.ResetCheckpoint(ctx, op); err != nil {
		return nil, apiError(err)
	}
	return &struct{}{}, nil
}

// AssetInput identifies an asset in the path.
type AssetInput struct {
	ID int64 `path:"id"`
}

// AssetView is an asset record with its resolved files.
type AssetView struct {
	Asset *catalog.Asset `json:"asset"`
	Files *asset.Group   `json:"files,omitempty"`
	// ResolveError explains why Files is absent.
	ResolveError string `json:"resolve_error,omitempty"`
}

// AssetOutput wraps an AssetView.
type AssetOutput struct {
	Body *AssetView
}

func (s *Server) registerAssetRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-asset",
		Method:      http.MethodGet,
		Path:        "/v1/assets/{id}",
		Summary:     "Show an asset and its files",
		Tags:        []string{"Assets"},
	}, s.getAsset)

	huma.Register(s.api, huma.Operation{
		OperationID: "offload-asset",
		Method:      http.MethodPost,
		Path:        "/v1/assets/{id}/offload",
		Summary:     "Offload a single asset",
		Tags:        []string{"Assets"},
	}, s.offloadAsset)

	huma.Register(s.api, huma.Operation{
		OperationID: "forget-asset",
		Method:      http.MethodDelete,
		Path:        "/v1/assets/{id}/remote",
		Summary:     "Delete an asset's remote copy",
		Tags:        []string{"Assets"},
	}, s.forgetAsset)
}

func (s *Server) getAsset(ctx context.Context, in *AssetInput) (*AssetOutput, error) {
	if err := validID(in.ID); err != nil {
		return nil, err
	}
	if s.catalog == nil {
		return nil, apiError(offerr.ErrInternal.WithMessage("catalog not available"))
	}
	a, err := s.catalog.GetAsset(ctx, in.ID)
	if err != nil {
		return nil, apiError(offerr.ErrCatalogUnavailable.Wrap(err))
	}
	if a == nil {
		return nil, apiError(offerr.ErrAssetNotFound.WithMessage("asset %d not found", in.ID))
	}
	return &AssetOutput{Body: s.view(a)}, nil
}

func (s *Server) offloadAsset(ctx context.Context, in *AssetInput) (*AssetOutput, error) {
	if err := validID(in.ID); err != nil {
		return nil, err
	}
	if s.engine == nil {
		return nil, apiError(offerr.ErrInternal.WithMessage("migration engine not available"))
	}
	a, err := s.engine.Offload(ctx, in.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &AssetOutput{Body: s.view(a)}, nil
}

func (s *Server) forgetAsset(ctx context.Context, in *AssetInput) (*AssetOutput, error) {
	if err := validID(in.ID); err != nil {
		return nil, err
	}
	if s.engine == nil {
		return nil, apiError(offerr.ErrInternal.WithMessage("migration engine not available"))
	}
	a, err := s.engine.Forget(ctx, in.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &AssetOutput{Body: s.view(a)}, nil
}

func validID(id int64) error {
	if id <= 0 {
		return apiError(offerr.ErrInvalidArgument.WithMessage("asset id must be positive, got %d", id))
	}
	return nil
}

func (s *Server) view(a *catalog.Asset) *AssetView {
	v := &AssetView{Asset: a}
	if s.resolver == nil {
		return v
	}
	g, err := s.resolver.Group(a)
	if err != nil {
		v.ResolveError = err.Error()
		return v
	}
	v.Files = g
	return v
}
