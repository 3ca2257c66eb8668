package http

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

const testRemoteBaseURL = "https://erp.example.com:8069/pos"

func newCORSRouter(t *testing.T, allowOrigins string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	middleware := createCORSMiddleware(true, allowOrigins, testRemoteBaseURL, logger)

	router := gin.New()
	if middleware != nil {
		router.Use(middleware)
	}
	router.POST("/v1/queue", func(c *gin.Context) { c.Status(http.StatusAccepted) })
	router.GET("/v1/status", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"offline": true}) })
	return router
}

func TestCreateCORSMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("DisabledReturnsNil", func(t *testing.T) {
		assert.Nil(t, createCORSMiddleware(false, "https://pos.example.com", testRemoteBaseURL, logger))
	})

	t.Run("NoOriginsFallsBackToRemoteAuthority", func(t *testing.T) {
		assert.NotNil(t, createCORSMiddleware(true, "", testRemoteBaseURL, logger))
	})

	t.Run("NoOriginsAndUnusableRemoteReturnsNil", func(t *testing.T) {
		assert.Nil(t, createCORSMiddleware(true, " , ", "localhost:8069", logger))
	})
}

func TestCORS_RemoteAuthorityOriginByDefault(t *testing.T) {
	router := newCORSRouter(t, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Origin", "https://erp.example.com:8069")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://erp.example.com:8069", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Request-Id")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_ExplicitOriginsReplaceDefault(t *testing.T) {
	router := newCORSRouter(t, " https://pos.example.com , https://kiosk.example.com ")

	for _, origin := range []string{"https://pos.example.com", "https://kiosk.example.com"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
		req.Header.Set("Origin", origin)
		router.ServeHTTP(w, req)

		assert.Equal(t, origin, w.Header().Get("Access-Control-Allow-Origin"))
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Origin", "https://erp.example.com:8069")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORS_EnqueuePreflightFromPublicPage(t *testing.T) {
	router := newCORSRouter(t, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/v1/queue", nil)
	req.Header.Set("Origin", "https://erp.example.com:8069")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	req.Header.Set("Access-Control-Request-Private-Network", "true")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://erp.example.com:8069", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Private-Network"))
}

func TestParseOrigins(t *testing.T) {
	assert.Nil(t, parseOrigins(""))
	assert.Empty(t, parseOrigins(" , "))
	assert.Equal(t,
		[]string{"https://pos.example.com", "http://192.168.1.20:3000"},
		parseOrigins(" https://pos.example.com ,http://192.168.1.20:3000,"),
	)
}

func TestOriginOf(t *testing.T) {
	tests := []struct {
		raw    string
		origin string
		ok     bool
	}{
		{raw: "https://erp.example.com:8069/pos", origin: "https://erp.example.com:8069", ok: true},
		{raw: "http://localhost:8069", origin: "http://localhost:8069", ok: true},
		{raw: "localhost:8069", ok: false},
		{raw: "ftp://erp.example.com", ok: false},
		{raw: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			origin, ok := originOf(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.origin, origin)
		})
	}
}
