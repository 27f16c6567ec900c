// Package server implements the offloader HTTP API.
package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"github.com/mediaoffload/offloader/internal/asset"
	"github.com/mediaoffload/offloader/internal/catalog"
	"github.com/mediaoffload/offloader/internal/config"
	offerr "github.com/mediaoffload/offloader/internal/errors"
	"github.com/mediaoffload/offloader/internal/migration"
	"github.com/mediaoffload/offloader/internal/progress"
	"github.com/mediaoffload/offloader/internal/storage"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the offloader HTTP server.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	catalog    catalog.Store
	resolver   *asset.Resolver
	engine     *migration.Engine
	tracker    *progress.Tracker
	store      storage.ObjectStore
	storeErr   error
	httpServer *http.Server

	// running holds one lock per operation so overlapping step requests
	// are refused instead of interleaved.
	running sync.Map
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithCatalog sets the catalog store.
func WithCatalog(c catalog.Store) ServerOption {
	return func(s *Server) { s.catalog = c }
}

// WithResolver sets the asset group resolver.
func WithResolver(r *asset.Resolver) ServerOption {
	return func(s *Server) { s.resolver = r }
}

// WithEngine sets the migration engine.
func WithEngine(e *migration.Engine) ServerOption {
	return func(s *Server) { s.engine = e }
}

// WithTracker sets the progress tracker.
func WithTracker(t *progress.Tracker) ServerOption {
	return func(s *Server) { s.tracker = t }
}

// WithObjectStore sets the object store used by the health check. A nil
// store with a non-nil reason reports storage as not configured.
func WithObjectStore(store storage.ObjectStore, reason error) ServerOption {
	return func(s *Server) {
		s.store = store
		s.storeErr = reason
	}
}

// New creates a Server and registers every route on a Chi router with a Huma
// API on top.
func New(cfg *config.Config, opts ...ServerOption) (*Server, error) {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("Offloader API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	// Bodies are plain JSON without the $schema link.
	humaConfig.CreateHooks = nil
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:    cfg,
		router: router,
		api:    api,
	}
	for _, opt := range opts {
		opt(s)
	}

	if token := cfg.Server.APIToken; token != "" {
		api.UseMiddleware(bearerAuth(api, token))
	}

	s.registerRoutes()
	return s, nil
}

// Handler returns the router wrapped in the middleware chain:
// metricsMiddleware -> commonHeaders -> router.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router
	handler = commonHeaders(handler)
	if s.metricsEnabled() {
		handler = metricsMiddleware(handler)
	}
	return handler
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) metricsEnabled() bool {
	return s.cfg.Metrics.Enabled == nil || *s.cfg.Metrics.Enabled
}

// registerRoutes configures all routes. Huma routes carry the OpenAPI
// documentation; /metrics and HEAD /health are plain Chi handlers.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports catalog and object store reachability.",
		Tags:        []string{"System"},
	}, s.health)

	// Huma only does one method per registration.
	s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	if s.metricsEnabled() {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	s.registerOperationRoutes()
	s.registerAssetRoutes()
}

// bearerAuth rejects /v1 requests that lack the configured bearer token.
func bearerAuth(api huma.API, token string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if op := ctx.Operation(); op == nil || !strings.HasPrefix(op.Path, "/v1/") {
			next(ctx)
			return
		}
		got, ok := strings.CutPrefix(ctx.Header("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			ctx.SetHeader("WWW-Authenticate", `Bearer realm="offloader"`)
			_ = huma.WriteErr(api, ctx, offerr.ErrUnauthorized.HTTPStatus, offerr.ErrUnauthorized.Message)
			return
		}
		next(ctx)
	}
}
