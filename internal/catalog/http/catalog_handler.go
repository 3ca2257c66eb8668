// Package http provides read-only HTTP handlers for the cached reference data.
package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/posoffline/internal/catalog/domain"
	catalogUsecase "github.com/allisson/posoffline/internal/catalog/usecase"
	apperrors "github.com/allisson/posoffline/internal/errors"
	"github.com/allisson/posoffline/internal/httputil"
)

// EntityResponse represents a cached reference entity.
type EntityResponse struct {
	ID       int64          `json:"id"`
	Type     string         `json:"type"`
	Data     map[string]any `json:"data"`
	CachedAt time.Time      `json:"cached_at"`
}

// ListEntitiesResponse wraps a list of cached entities.
type ListEntitiesResponse struct {
	Data []EntityResponse `json:"data"`
}

func mapEntityToResponse(e *domain.Entity) EntityResponse {
	return EntityResponse{
		ID:       e.ID,
		Type:     string(e.Type),
		Data:     e.Data,
		CachedAt: e.CachedAt,
	}
}

// CatalogHandler handles HTTP requests for cached reference data.
type CatalogHandler struct {
	catalogUseCase catalogUsecase.UseCase
	logger         *slog.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalogUseCase catalogUsecase.UseCase, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalogUseCase: catalogUseCase,
		logger:         logger,
	}
}

// CountsHandler reports how many entities of each type are cached.
// GET /v1/catalog
func (h *CatalogHandler) CountsHandler(c *gin.Context) {
	counts, err := h.catalogUseCase.Counts(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// ListHandler lists the cached entities of one type.
// GET /v1/catalog/:type
func (h *CatalogHandler) ListHandler(c *gin.Context) {
	t := domain.EntityType(c.Param("type"))

	entities, err := h.catalogUseCase.List(c.Request.Context(), t)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	data := make([]EntityResponse, 0, len(entities))
	for _, e := range entities {
		data = append(data, mapEntityToResponse(e))
	}
	c.JSON(http.StatusOK, ListEntitiesResponse{Data: data})
}

// GetHandler returns one cached entity.
// GET /v1/catalog/:type/:id
func (h *CatalogHandler) GetHandler(c *gin.Context) {
	t := domain.EntityType(c.Param("type"))

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httputil.HandleBadRequestGin(c, apperrors.New("invalid entity id"), h.logger)
		return
	}

	entity, err := h.catalogUseCase.Get(c.Request.Context(), t, id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, mapEntityToResponse(entity))
}
