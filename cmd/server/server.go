package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aonescu/shopkeeper/internal/audit"
	"github.com/aonescu/shopkeeper/internal/lifecycle"
	"github.com/aonescu/shopkeeper/internal/ratelimit"
	"github.com/aonescu/shopkeeper/internal/types"
)

// StoreController is the lifecycle surface the API exposes.
type StoreController interface {
	Create(ctx context.Context, name string) (*lifecycle.CreateResult, error)
	List(ctx context.Context) ([]types.Store, error)
	Delete(ctx context.Context, id string) error
	Stats() types.Stats
	MaxStores() int
}

// Pinger reports whether a backing database is reachable.
type Pinger interface {
	Ping() error
}

// Options holds the optional collaborators of the API server.
type Options struct {
	// History serves GET /api/audit. The endpoint is not registered when nil.
	History audit.Reader
	// DB is pinged by /health when set.
	DB Pinger
	// Gatherer is exposed on /metrics when set.
	Gatherer prometheus.Gatherer
	// TrustProxy keys rate limits on the first X-Forwarded-For address.
	TrustProxy bool
}

type APIServer struct {
	stores  StoreController
	limiter *ratelimit.Limiter
	audit   lifecycle.Auditor
	log     *zap.Logger
	opts    Options
	mux     *http.ServeMux
}

func NewAPIServer(stores StoreController, limiter *ratelimit.Limiter, auditor lifecycle.Auditor, log *zap.Logger, opts Options) *APIServer {
	api := &APIServer{
		stores:  stores,
		limiter: limiter,
		audit:   auditor,
		log:     log.With(zap.String("component", "api")),
		opts:    opts,
		mux:     http.NewServeMux(),
	}
	api.registerRoutes()
	return api
}

func (api *APIServer) registerRoutes() {
	// Store lifecycle
	api.mux.HandleFunc("GET /api/stores", api.handleListStores)
	api.mux.HandleFunc("POST /api/stores", api.rateLimited(api.handleCreateStore))
	api.mux.HandleFunc("DELETE /api/stores/{id}", api.rateLimited(api.handleDeleteStore))
	api.mux.HandleFunc("GET /api/stores/summary", api.handleSummary)

	// Counters
	api.mux.HandleFunc("GET /api/metrics", api.handleStats)

	// Audit history
	if api.opts.History != nil {
		api.mux.HandleFunc("GET /api/audit", api.handleAudit)
	}

	// Health check
	api.mux.HandleFunc("GET /health", api.handleHealth)
	api.mux.HandleFunc("GET /ready", api.handleReady)

	if api.opts.Gatherer != nil {
		api.mux.Handle("GET /metrics", promhttp.HandlerFor(api.opts.Gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the routes wrapped in the CORS and logging middleware.
func (api *APIServer) Handler() http.Handler {
	return api.corsMiddleware(api.loggingMiddleware(api.mux))
}
