// Package http provides HTTP handlers for offline and online logins.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/posoffline/internal/credential/http/dto"
	credentialUsecase "github.com/allisson/posoffline/internal/credential/usecase"
	"github.com/allisson/posoffline/internal/httputil"
	sessionDTO "github.com/allisson/posoffline/internal/session/http/dto"
	customValidation "github.com/allisson/posoffline/internal/validation"
)

// CredentialHandler handles HTTP requests for the credential cache.
type CredentialHandler struct {
	credentialUseCase credentialUsecase.UseCase
	logger            *slog.Logger
}

// NewCredentialHandler creates a new credential handler.
func NewCredentialHandler(credentialUseCase credentialUsecase.UseCase, logger *slog.Logger) *CredentialHandler {
	return &CredentialHandler{
		credentialUseCase: credentialUseCase,
		logger:            logger,
	}
}

// OfflineLoginHandler authenticates against the cached credentials.
// POST /v1/auth/offline - Returns 201 Created with the new offline session.
func (h *CredentialHandler) OfflineLoginHandler(c *gin.Context) {
	var req dto.OfflineLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	record, err := h.credentialUseCase.AuthenticateOffline(c.Request.Context(), req.Login, req.PIN)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, sessionDTO.MapSessionToResponse(record))
}

// OnlineLoginHandler validates a secret with the server and caches the
// resulting credential.
// POST /v1/auth/online
func (h *CredentialHandler) OnlineLoginHandler(c *gin.Context) {
	var req dto.OnlineLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	cached, err := h.credentialUseCase.ValidateOnline(c.Request.Context(), req.UserID, req.PIN)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapCredentialToResponse(cached))
}

// ListHandler lists the cached credentials.
// GET /v1/credentials
func (h *CredentialHandler) ListHandler(c *gin.Context) {
	credentials, err := h.credentialUseCase.List(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, dto.MapCredentialsToListResponse(credentials))
}

// ClearHandler removes every cached credential and offline session.
// DELETE /v1/credentials
func (h *CredentialHandler) ClearHandler(c *gin.Context) {
	if err := h.credentialUseCase.Clear(c.Request.Context()); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}
