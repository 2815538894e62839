package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aonescu/shopkeeper/internal/formatting"
	"github.com/aonescu/shopkeeper/internal/lifecycle"
	"github.com/aonescu/shopkeeper/internal/logger"
	"github.com/aonescu/shopkeeper/internal/types"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
	maxRequestBody    = 1 << 20
)

// GET /api/stores
func (api *APIServer) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := api.stores.List(r.Context())
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, http.StatusOK, stores)
}

// POST /api/stores
// Body: {"name": "MyShop"}
func (api *APIServer) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.respondJSON(w, http.StatusBadRequest, errorBody("Invalid request body"))
		return
	}

	result, err := api.stores.Create(r.Context(), req.Name)
	if err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, http.StatusOK, result)
}

// DELETE /api/stores/{id}
func (api *APIServer) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	if err := api.stores.Delete(r.Context(), r.PathValue("id")); err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, http.StatusOK, map[string]string{"message": "Store deleted"})
}

// GET /api/stores/summary
func (api *APIServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	stores, err := api.stores.List(r.Context())
	if err != nil {
		api.respondError(w, err)
		return
	}

	summary := formatting.GenerateSummary(stores)
	logger.FromContext(r.Context(), api.log).Debug(formatting.FormatSummary(summary))

	api.respondJSON(w, http.StatusOK, struct {
		formatting.Summary
		MaxStores int `json:"max_stores"`
	}{summary, api.stores.MaxStores()})
}

// GET /api/metrics
func (api *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	api.respondJSON(w, http.StatusOK, api.stores.Stats())
}

// GET /api/audit?action=STORE_CREATE_FAILED&limit=50
func (api *APIServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	action := types.Action(r.URL.Query().Get("action"))
	if action != "" && !action.Valid() {
		api.respondJSON(w, http.StatusBadRequest, errorBody("unknown action "+strconv.Quote(string(action))))
		return
	}

	limit := defaultAuditLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 {
			api.respondJSON(w, http.StatusBadRequest, errorBody("limit must be a positive integer"))
			return
		}
		limit = min(l, maxAuditLimit)
	}

	entries, err := api.opts.History.Recent(r.Context(), action, limit)
	if err != nil {
		logger.FromContext(r.Context(), api.log).Error("Failed to read audit history", zap.Error(err))
		api.respondJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	if entries == nil {
		entries = []types.AuditEntry{}
	}
	api.respondJSON(w, http.StatusOK, entries)
}

// GET /health
func (api *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	health := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC(),
	}

	// Check database connection if the audit mirror is enabled
	if api.opts.DB != nil {
		if err := api.opts.DB.Ping(); err != nil {
			health["status"] = "unhealthy"
			health["database"] = "disconnected"
			status = http.StatusServiceUnavailable
		} else {
			health["database"] = "connected"
		}
	}

	api.respondJSON(w, status, health)
}

// GET /ready
func (api *APIServer) handleReady(w http.ResponseWriter, r *http.Request) {
	api.respondJSON(w, http.StatusOK, map[string]interface{}{
		"ready":      true,
		"max_stores": api.stores.MaxStores(),
	})
}

// rateLimited admits at most the configured number of requests per client
// per window into next. Denials are audited before any cluster call.
func (api *APIServer) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := api.clientKey(r)
		if !api.limiter.Admit(client) {
			api.audit.Record(r.Context(), types.ActionRateLimitExceeded, map[string]string{
				"client": client,
				"method": r.Method,
				"path":   r.URL.Path,
			})
			api.respondError(w, lifecycle.ErrRateLimited)
			return
		}
		next(w, r)
	}
}

func (api *APIServer) clientKey(r *http.Request) string {
	if api.opts.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusFor maps lifecycle errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrInvalidName), errors.Is(err, lifecycle.ErrAlreadyExists):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrRateLimited), errors.Is(err, lifecycle.ErrCapacityExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	var backendErr *lifecycle.BackendError
	if errors.As(err, &backendErr) {
		return formatting.TruncateDiagnostic(backendErr.Diagnostic, formatting.DefaultDiagnosticLimit)
	}
	return err.Error()
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func (api *APIServer) respondError(w http.ResponseWriter, err error) {
	api.respondJSON(w, statusFor(err), errorBody(errorMessage(err)))
}

func (api *APIServer) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		api.log.Debug("Failed to write response", zap.Error(err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (api *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		log := api.log.With(zap.String(logger.RequestIDKey, requestID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(logger.NewContextWithLogger(r.Context(), log)))

		level := zap.InfoLevel
		if r.Method == http.MethodGet {
			// the dashboard polls the list endpoint every few seconds
			level = zap.DebugLevel
		}
		log.Log(level, "Request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (api *APIServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
