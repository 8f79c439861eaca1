// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/coding-interview-platform/backend/internal/model"
	"github.com/coding-interview-platform/backend/internal/store"
	"github.com/coding-interview-platform/backend/internal/ws"
	"github.com/gin-gonic/gin"
)

// ServiceName identifies this backend in health and root responses.
const ServiceName = "coding-interview-backend"

// Version is the API version reported by the root endpoint.
const Version = "0.2.0"

// SessionHandler handles HTTP requests for session management.
type SessionHandler struct {
	store      *store.SessionStore
	hubManager *ws.HubManager
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionStore *store.SessionStore, hubManager *ws.HubManager) *SessionHandler {
	return &SessionHandler{
		store:      sessionStore,
		hubManager: hubManager,
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// Create handles POST /api/sessions - creates a new session.
func (h *SessionHandler) Create(c *gin.Context) {
	// An absent body means "use the defaults"; only malformed JSON is
	// rejected.
	req := model.CreateSessionRequest{Language: model.LanguagePython}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	session, err := h.store.Create(req.Language)
	if err != nil {
		if errors.Is(err, model.ErrUnsupportedLanguage) {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR",
				"Unsupported language: "+string(req.Language))
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create session: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, session.ToResponse(0))
}

// Get handles GET /api/sessions/:id - gets a specific session.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")

	session, err := h.store.Get(sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get session: "+err.Error())
		return
	}

	// Presence is owned by the hub, not the record.
	c.JSON(http.StatusOK, session.ToResponse(h.hubManager.ClientCount(sessionID)))
}

// Health handles GET /api/health.
func (h *SessionHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   ServiceName,
	})
}

// Root handles GET / - service identity and session count.
func (h *SessionHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":  "Coding Interview Platform API",
		"version":  Version,
		"status":   "running",
		"sessions": h.store.Count(),
	})
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.Health)
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", h.Create)
		sessions.GET("/:id", h.Get)
	}
}
