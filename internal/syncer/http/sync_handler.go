// Package http provides HTTP handlers for sync status and manual sync.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/allisson/posoffline/internal/connectivity"
	"github.com/allisson/posoffline/internal/httputil"
	"github.com/allisson/posoffline/internal/syncer"
	"github.com/allisson/posoffline/internal/syncer/http/dto"
)

// Syncer runs and reports reconciliation passes.
type Syncer interface {
	ForceSyncNow(ctx context.Context) (*syncer.PassResult, error)
	Status() syncer.Status
}

// Connectivity reports and refreshes server reachability.
type Connectivity interface {
	Status() connectivity.Status
	Recheck(ctx context.Context) error
}

// PendingCounter counts operations awaiting delivery.
type PendingCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

// SyncHandler handles HTTP requests for sync status and manual sync.
type SyncHandler struct {
	syncer       Syncer
	connectivity Connectivity
	pending      PendingCounter
	logger       *slog.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(
	syncer Syncer,
	connectivity Connectivity,
	pending PendingCounter,
	logger *slog.Logger,
) *SyncHandler {
	return &SyncHandler{
		syncer:       syncer,
		connectivity: connectivity,
		pending:      pending,
		logger:       logger,
	}
}

// StatusHandler reports connectivity, sync manager and queue state.
// GET /v1/status
func (h *SyncHandler) StatusHandler(c *gin.Context) {
	pending, err := h.pending.CountPending(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, h.status(pending))
}

// ForceSyncHandler runs a reconciliation pass immediately.
// POST /v1/sync - Returns 503 when offline and 409 when a pass is already running.
func (h *SyncHandler) ForceSyncHandler(c *gin.Context) {
	result, err := h.syncer.ForceSyncNow(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, dto.MapPassToResponse(result))
}

// RecheckHandler probes the server immediately and returns the resulting status.
// POST /v1/connectivity/recheck
func (h *SyncHandler) RecheckHandler(c *gin.Context) {
	if err := h.connectivity.Recheck(c.Request.Context()); err != nil {
		h.logger.Info("recheck probe failed", slog.Any("error", err))
	}
	c.JSON(http.StatusOK, h.connectivity.Status())
}

func (h *SyncHandler) status(pending int64) dto.StatusResponse {
	conn := h.connectivity.Status()
	return dto.StatusResponse{
		Offline:      !conn.Reachable,
		Connectivity: conn,
		Sync:         h.syncer.Status(),
		Pending:      pending,
	}
}
