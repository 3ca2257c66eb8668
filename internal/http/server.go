// Package http provides HTTP server implementation and request handlers.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	catalogHTTP "github.com/allisson/posoffline/internal/catalog/http"
	"github.com/allisson/posoffline/internal/config"
	credentialHTTP "github.com/allisson/posoffline/internal/credential/http"
	"github.com/allisson/posoffline/internal/metrics"
	outboxHTTP "github.com/allisson/posoffline/internal/outbox/http"
	sessionHTTP "github.com/allisson/posoffline/internal/session/http"
	syncerHTTP "github.com/allisson/posoffline/internal/syncer/http"
)

// Server represents the local control API server.
type Server struct {
	db     *sql.DB
	server *http.Server
	logger *slog.Logger
	router *gin.Engine
}

// NewServer creates a new HTTP server.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter configures the Gin router with all routes and middleware.
// metricsProvider may be nil when metrics are disabled.
func (s *Server) SetupRouter(
	cfg *config.Config,
	queueHandler *outboxHTTP.QueueHandler,
	syncHandler *syncerHTTP.SyncHandler,
	credentialHandler *credentialHTTP.CredentialHandler,
	sessionHandler *sessionHTTP.SessionHandler,
	catalogHandler *catalogHTTP.CatalogHandler,
	metricsProvider *metrics.Provider,
	metricsNamespace string,
) {
	gin.SetMode(cfg.GetGinMode())

	router := gin.New()

	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))
	router.Use(gin.Recovery())

	corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, cfg.RemoteBaseURL, s.logger)
	if corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), metricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	{
		v1.GET("/status", syncHandler.StatusHandler)
		v1.POST("/sync", syncHandler.ForceSyncHandler)
		v1.POST("/connectivity/recheck", syncHandler.RecheckHandler)

		queue := v1.Group("/queue")
		{
			queue.POST("", queueHandler.EnqueueHandler)
			queue.GET("/stats", queueHandler.StatsHandler)
			queue.GET("/errors", queueHandler.ListErrorsHandler)
			queue.POST("/replay", queueHandler.ReplayHandler)
		}

		auth := v1.Group("/auth")
		{
			auth.POST("/offline", credentialHandler.OfflineLoginHandler)
			auth.POST("/online", credentialHandler.OnlineLoginHandler)
		}

		credentials := v1.Group("/credentials")
		{
			credentials.GET("", credentialHandler.ListHandler)
			credentials.DELETE("", credentialHandler.ClearHandler)
		}

		session := v1.Group("/session")
		{
			session.GET("", sessionHandler.RestoreHandler)
			session.POST("/restore", sessionHandler.RestoreHandler)
			session.PUT("", sessionHandler.SaveHandler)
			session.DELETE("", sessionHandler.LogoutHandler)
		}

		catalog := v1.Group("/catalog")
		{
			catalog.GET("", catalogHandler.CountsHandler)
			catalog.GET("/:type", catalogHandler.ListHandler)
			catalog.GET("/:type/:id", catalogHandler.GetHandler)
		}
	}

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return fmt.Errorf("router not configured, call SetupRouter first")
	}
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports that the process is alive.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the local store answers.
func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.db.PingContext(ctx) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"database": "error"},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": gin.H{"database": "ok"},
	})
}
