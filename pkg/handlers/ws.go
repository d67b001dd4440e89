package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/dialogue"
)

// wsTurnTimeout bounds one turn processed over the socket.
const wsTurnTimeout = 2 * time.Minute

// WSHandler streams turn progress over a WebSocket: candidate tranches,
// phase changes and enrichment progress arrive as they happen, followed by
// a final turn_complete event.
type WSHandler struct {
	engine *dialogue.Engine
	logger *zap.Logger
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(engine *dialogue.Engine, logger *zap.Logger) *WSHandler {
	return &WSHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers the websocket route on the given mux.
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/chat", h.Serve)
}

// wsError is the error event shape sent to the client.
type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Serve upgrades the connection and processes chat requests until the
// client disconnects. Requests are handled one at a time per connection;
// cross-session ordering is the store's concern.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	for {
		var req ChatRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("WebSocket read failed", zap.Error(err))
			}
			return
		}

		if strings.TrimSpace(req.Message) == "" {
			h.send(ctx, conn, dialogue.Event{Type: "error", Payload: wsError{Code: "bad_request", Message: "message is required"}})
			continue
		}

		h.turn(ctx, conn, req)
	}
}

func (h *WSHandler) turn(ctx context.Context, conn *websocket.Conn, req ChatRequest) {
	turnCtx, cancel := context.WithTimeout(ctx, wsTurnTimeout)
	defer cancel()

	resp, err := h.engine.Turn(turnCtx, dialogue.TurnRequest{
		SessionID: req.SessionID,
		Message:   req.Message,
		Notify: func(ev dialogue.Event) {
			h.send(turnCtx, conn, ev)
		},
	})
	if err != nil {
		status, code := StatusFor(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			h.logger.Error("WebSocket turn failed", zap.Error(err))
			message = "internal error"
		}
		h.send(turnCtx, conn, dialogue.Event{Type: "error", Payload: wsError{Code: code, Message: message}})
		return
	}

	h.send(turnCtx, conn, dialogue.Event{Type: "turn_complete", Payload: resp})
}

func (h *WSHandler) send(ctx context.Context, conn *websocket.Conn, ev dialogue.Event) {
	if err := wsjson.Write(ctx, conn, ev); err != nil {
		h.logger.Debug("WebSocket write failed", zap.Error(err))
	}
}
