package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/posoffline/internal/catalog/domain"
	"github.com/allisson/posoffline/internal/catalog/http/mocks"
)

func setupTestHandler(t *testing.T) (*CatalogHandler, *mocks.MockCatalogUseCase) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	mockUseCase := &mocks.MockCatalogUseCase{}
	t.Cleanup(func() { mockUseCase.AssertExpectations(t) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCatalogHandler(mockUseCase, logger), mockUseCase
}

func createTestContext(method, path string, params gin.Params) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, nil)
	c.Params = params
	return c, w
}

func TestCatalogHandler_CountsHandler(t *testing.T) {
	handler, mockUseCase := setupTestHandler(t)

	mockUseCase.On("Counts", mock.Anything).
		Return(map[domain.EntityType]int64{domain.EntityTypeProduct: 12, domain.EntityTypeTax: 2}, nil).
		Once()

	c, w := createTestContext(http.MethodGet, "/v1/catalog", nil)

	handler.CountsHandler(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"product":12,"tax":2}`, w.Body.String())
}

func TestCatalogHandler_ListHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		mockUseCase.On("List", mock.Anything, domain.EntityTypeProduct).Return([]*domain.Entity{
			{Type: domain.EntityTypeProduct, ID: 10, Data: map[string]any{"name": "Espresso"}, CachedAt: time.Now()},
		}, nil).Once()

		c, w := createTestContext(http.MethodGet, "/v1/catalog/product", gin.Params{{Key: "type", Value: "product"}})

		handler.ListHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var response ListEntitiesResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Len(t, response.Data, 1)
		assert.Equal(t, int64(10), response.Data[0].ID)
		assert.Equal(t, "Espresso", response.Data[0].Data["name"])
	})

	t.Run("Error_UnknownType", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		mockUseCase.On("List", mock.Anything, domain.EntityType("coupon")).
			Return(nil, domain.ErrInvalidEntityType).
			Once()

		c, w := createTestContext(http.MethodGet, "/v1/catalog/coupon", gin.Params{{Key: "type", Value: "coupon"}})

		handler.ListHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestCatalogHandler_GetHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		mockUseCase.On("Get", mock.Anything, domain.EntityTypeTax, int64(3)).
			Return(&domain.Entity{Type: domain.EntityTypeTax, ID: 3, Data: map[string]any{"rate": 0.2}}, nil).
			Once()

		c, w := createTestContext(http.MethodGet, "/v1/catalog/tax/3", gin.Params{
			{Key: "type", Value: "tax"},
			{Key: "id", Value: "3"},
		})

		handler.GetHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"rate":0.2`)
	})

	t.Run("Error_InvalidID", func(t *testing.T) {
		handler, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodGet, "/v1/catalog/tax/abc", gin.Params{
			{Key: "type", Value: "tax"},
			{Key: "id", Value: "abc"},
		})

		handler.GetHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		handler, mockUseCase := setupTestHandler(t)

		mockUseCase.On("Get", mock.Anything, domain.EntityTypeTax, int64(99)).
			Return(nil, domain.ErrEntityNotFound).
			Once()

		c, w := createTestContext(http.MethodGet, "/v1/catalog/tax/99", gin.Params{
			{Key: "type", Value: "tax"},
			{Key: "id", Value: "99"},
		})

		handler.GetHandler(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
