// Package http provides HTTP handlers for the pending-operation queue.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/posoffline/internal/httputil"
	"github.com/allisson/posoffline/internal/outbox/domain"
	"github.com/allisson/posoffline/internal/outbox/http/dto"
	outboxUsecase "github.com/allisson/posoffline/internal/outbox/usecase"
	customValidation "github.com/allisson/posoffline/internal/validation"
)

// Enqueuer records operations and schedules their delivery.
type Enqueuer interface {
	AddToSyncQueue(
		ctx context.Context,
		kind domain.OperationKind,
		payload json.RawMessage,
		correlationID string,
	) (*domain.PendingOperation, error)
}

// QueueHandler handles HTTP requests for the pending-operation queue.
type QueueHandler struct {
	enqueuer      Enqueuer
	outboxUseCase outboxUsecase.UseCase
	logger        *slog.Logger
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(enqueuer Enqueuer, outboxUseCase outboxUsecase.UseCase, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{
		enqueuer:      enqueuer,
		outboxUseCase: outboxUseCase,
		logger:        logger,
	}
}

// EnqueueHandler records a new operation.
// POST /v1/queue - Returns 202 Accepted; delivery happens on the next sync pass.
func (h *QueueHandler) EnqueueHandler(c *gin.Context) {
	var req dto.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	op, err := h.enqueuer.AddToSyncQueue(
		c.Request.Context(),
		domain.OperationKind(req.Kind),
		req.Payload,
		req.CorrelationID,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, dto.MapOperationToResponse(op))
}

// StatsHandler reports queue counters.
// GET /v1/queue/stats
func (h *QueueHandler) StatsHandler(c *gin.Context) {
	stats, err := h.outboxUseCase.Stats(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListErrorsHandler returns the most recent sync errors.
// GET /v1/queue/errors?limit=N
func (h *QueueHandler) ListErrorsHandler(c *gin.Context) {
	limit, err := httputil.ParseLimit(c, 50, 500)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	errs, err := h.outboxUseCase.ListErrors(c.Request.Context(), limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, dto.MapSyncErrorsToListResponse(errs))
}

// ReplayHandler requeues dead-lettered operations.
// POST /v1/queue/replay
func (h *QueueHandler) ReplayHandler(c *gin.Context) {
	var req dto.ReplayRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.HandleBadRequestGin(c, err, h.logger)
			return
		}
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	replayed, err := h.outboxUseCase.ReplayFailed(c.Request.Context(), req.ParsedIDs())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, dto.ReplayResponse{Replayed: replayed})
}
