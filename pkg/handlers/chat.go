package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/dialogue"
)

// ChatRequest is the POST /chat body. An empty session_id starts a new
// session.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the POST /chat envelope: success carries the turn
// response, failure carries a structured error.
type ChatResponse struct {
	Success  bool                   `json:"success"`
	Response *dialogue.TurnResponse `json:"response,omitempty"`
	Error    *ChatError             `json:"error,omitempty"`
}

// ChatError is the failure half of the chat envelope.
type ChatError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChatHandler serves synchronous dialogue turns.
type ChatHandler struct {
	engine *dialogue.Engine
	logger *zap.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(engine *dialogue.Engine, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers the chat route on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.Chat)
}

// Chat handles POST /chat: one user message in, one turn response out.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.fail(w, http.StatusBadRequest, "bad_request", "message is required")
		return
	}

	resp, err := h.engine.Turn(r.Context(), dialogue.TurnRequest{
		SessionID: req.SessionID,
		Message:   req.Message,
	})
	if err != nil {
		status, code := StatusFor(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			h.logger.Error("Chat turn failed", zap.Error(err))
			message = "internal error"
		} else {
			h.logger.Warn("Chat turn rejected", zap.Int("status", status), zap.Error(err))
		}
		h.fail(w, status, code, message)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ChatResponse{Success: true, Response: resp}); err != nil {
		h.logger.Error("Failed to encode chat response", zap.Error(err))
	}
}

func (h *ChatHandler) fail(w http.ResponseWriter, status int, code, message string) {
	env := ChatResponse{Success: false, Error: &ChatError{Code: code, Message: message}}
	if err := WriteJSON(w, status, env); err != nil {
		h.logger.Error("Failed to encode chat error", zap.Error(err))
	}
}
