package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/sessions"
)

// SessionsHandler serves session inspection and deletion.
type SessionsHandler struct {
	store  *sessions.Store
	logger *zap.Logger
}

// NewSessionsHandler creates a SessionsHandler.
func NewSessionsHandler(store *sessions.Store, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{store: store, logger: logger}
}

// RegisterRoutes registers the session routes on the given mux.
func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /sessions/{id}", h.Get)
	mux.HandleFunc("DELETE /sessions/{id}", h.Delete)
}

// Get handles GET /sessions/{id}: the full session projection, message
// history included.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		_ = WriteError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, sess); err != nil {
		h.logger.Error("Failed to encode session", zap.Error(err))
	}
}

// Delete handles DELETE /sessions/{id}.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		_ = WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
