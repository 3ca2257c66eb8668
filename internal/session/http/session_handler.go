// Package http provides HTTP handlers for session persistence.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/allisson/posoffline/internal/httputil"
	"github.com/allisson/posoffline/internal/session/domain"
	"github.com/allisson/posoffline/internal/session/http/dto"
	customValidation "github.com/allisson/posoffline/internal/validation"
)

// SessionStore persists and restores the current session.
type SessionStore interface {
	Save(ctx context.Context, live *domain.LiveSession) (*domain.SessionRecord, error)
	Restore(ctx context.Context) (*domain.SessionRecord, error)
	Logout(ctx context.Context) error
}

// SessionHandler handles HTTP requests for the current session.
type SessionHandler struct {
	sessions SessionStore
	logger   *slog.Logger

	mu     sync.Mutex
	latest *domain.LiveSession
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions SessionStore, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// SaveHandler persists the live session and makes it current.
// PUT /v1/session
func (h *SessionHandler) SaveHandler(c *gin.Context) {
	var req dto.SaveSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	live := req.ToLiveSession()
	record, err := h.sessions.Save(c.Request.Context(), live)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.mu.Lock()
	h.latest = live
	h.mu.Unlock()
	c.JSON(http.StatusOK, dto.MapSessionToResponse(record))
}

// RestoreHandler returns the last saved session.
// GET /v1/session - Returns 404 when nothing valid is cached.
func (h *SessionHandler) RestoreHandler(c *gin.Context) {
	record, err := h.sessions.Restore(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	if record == nil {
		httputil.HandleErrorGin(c, domain.ErrSessionNotFound, h.logger)
		return
	}
	c.JSON(http.StatusOK, dto.MapSessionToResponse(record))
}

// LogoutHandler removes the current session.
// DELETE /v1/session
func (h *SessionHandler) LogoutHandler(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context()); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.mu.Lock()
	h.latest = nil
	h.mu.Unlock()
	c.Status(http.StatusNoContent)
}

// Latest returns the live session last saved through the API, or nil after a
// logout. It feeds autosave and the teardown save.
func (h *SessionHandler) Latest() *domain.LiveSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}
