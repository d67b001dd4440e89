package handlers

import (
	"database/sql"
	"net/http"
	"runtime"

	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/config"
	"github.com/incipit-labs/folio-engine/pkg/sessions"
)

// HealthResponse reports whether the service and its backing stores are up.
type HealthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	Service           string `json:"service"`
	GoVersion         string `json:"go_version"`
	Environment       string `json:"environment"`
	DatabaseConnected bool   `json:"database_connected"`
	SessionStoreOK    bool   `json:"session_store_ok"`
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	cfg    *config.Config
	index  *sql.DB
	store  *sessions.Store
	logger *zap.Logger
}

// NewHealthHandler creates a HealthHandler over the live stores.
func NewHealthHandler(cfg *config.Config, index *sql.DB, store *sessions.Store, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, index: index, store: store, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
}

// Health handles GET /health. Degraded dependencies surface as a 503 with
// per-store booleans so operators can see which leg failed.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "folio-engine",
		GoVersion:   runtime.Version(),
		Environment: h.cfg.Env,
	}

	resp.DatabaseConnected = h.index != nil && h.index.PingContext(r.Context()) == nil
	resp.SessionStoreOK = h.store != nil && h.store.Ping(r.Context()) == nil

	status := http.StatusOK
	if !resp.DatabaseConnected || !resp.SessionStoreOK {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}
