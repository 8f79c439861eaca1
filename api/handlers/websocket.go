package handlers

import (
	"errors"
	"net/http"

	"github.com/coding-interview-platform/backend/internal/model"
	"github.com/coding-interview-platform/backend/internal/store"
	"github.com/coding-interview-platform/backend/internal/ws"
	"github.com/gin-gonic/gin"
)

// WebSocketHandler handles WebSocket connections for coding sessions.
type WebSocketHandler struct {
	store     *store.SessionStore
	wsHandler *ws.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(sessionStore *store.SessionStore, wsHandler *ws.Handler) *WebSocketHandler {
	return &WebSocketHandler{
		store:     sessionStore,
		wsHandler: wsHandler,
	}
}

// Connect handles GET /ws/:id - joins a session via WebSocket.
// An unknown session ID refuses the upgrade with 404.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	sessionID := c.Param("id")

	if _, err := h.store.Get(sessionID); err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get session: "+err.Error())
		return
	}

	if err := h.wsHandler.HandleConnection(c.Writer, c.Request, sessionID); err != nil {
		// Error already handled at the transport level.
		return
	}
}

// RegisterRoutes registers the WebSocket route on the router.
func (h *WebSocketHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/:id", h.Connect)
}
