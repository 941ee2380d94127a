// Package chatapi implements the Chat Entry Point (C9): the HTTP surface
// spec.md §6 describes — POST /chat, the upload-async/upload-status pair,
// a session-clear endpoint, and a development-only seed endpoint behind a
// feature flag. It composes C4's routing classifier, C6's workflow engine,
// and C8's photo pipeline behind plain net/http handlers; it owns no
// business logic of its own beyond request/response translation.
package chatapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/utjfc/reg-agent/internal/observability"
	"github.com/utjfc/reg-agent/internal/photo"
	"github.com/utjfc/reg-agent/internal/routing"
	"github.com/utjfc/reg-agent/internal/sessions"
	"github.com/utjfc/reg-agent/internal/workflow"
)

// Config configures a Handler.
type Config struct {
	SessionStore   sessions.Store
	Engine         *workflow.Engine
	Classifier     *routing.Classifier
	Pipeline       *photo.Pipeline
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	MaxUploadBytes int64
	DevEndpoints   bool
}

// Handler is the C9 HTTP surface. It implements http.Handler directly;
// callers mount it on an *http.Server.
type Handler struct {
	sessions       sessions.Store
	engine         *workflow.Engine
	classifier     *routing.Classifier
	pipeline       *photo.Pipeline
	logger         *observability.Logger
	metrics        *observability.Metrics
	maxUploadBytes int64
	devEndpoints   bool
	mux            *http.ServeMux
}

// NewHandler builds the C9 handler and registers its routes.
func NewHandler(cfg Config) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.LogConfig{})
	}

	h := &Handler{
		sessions:       cfg.SessionStore,
		engine:         cfg.Engine,
		classifier:     cfg.Classifier,
		pipeline:       cfg.Pipeline,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		maxUploadBytes: cfg.MaxUploadBytes,
		devEndpoints:   cfg.DevEndpoints,
		mux:            http.NewServeMux(),
	}
	h.setupRoutes()
	return h
}

func (h *Handler) setupRoutes() {
	h.mux.HandleFunc("POST /chat", h.handleChat)
	h.mux.HandleFunc("POST /upload-async", h.handleUploadAsync)
	h.mux.HandleFunc("GET /upload-status/{session_id}", h.handleUploadStatus)
	h.mux.HandleFunc("POST /sessions/{session_id}/clear", h.handleClearSession)

	if h.devEndpoints {
		h.mux.HandleFunc("POST /dev/seed", h.handleDevSeed)
	}
}

// ServeHTTP satisfies http.Handler by delegating to the internal mux.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Mount wraps the handler with request logging and metrics, mirroring the
// teacher's LoggingMiddleware(logger)(handler) composition
// (internal/web/middleware.go).
func (h *Handler) Mount() http.Handler {
	return LoggingMiddleware(h.logger)(MetricsMiddleware(h.metrics)(h))
}

// jsonResponse writes v as a JSON body with a 200 status.
func (h *Handler) jsonResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error(context.Background(), "chatapi: json encode error", "error", err)
	}
}

// jsonError writes a JSON error body with the given status code. Per §7's
// propagation policy this is only ever used for malformed requests
// (missing user_message/session_id) and transport-level upload failures —
// never for domain errors, which are always a 200 with an apology string.
func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error(context.Background(), "chatapi: json encode error", "error", err)
	}
}

// clientTimeout returns min(requestedDeadline - 2s, 28s) per §5's
// cancellation policy, defaulting to 28s when the request carries no
// deadline of its own.
func clientTimeout(r *http.Request) time.Duration {
	const defaultTimeout = 28 * time.Second
	deadline, ok := r.Context().Deadline()
	if !ok {
		return defaultTimeout
	}
	remaining := time.Until(deadline) - 2*time.Second
	if remaining <= 0 || remaining > defaultTimeout {
		return defaultTimeout
	}
	return remaining
}
