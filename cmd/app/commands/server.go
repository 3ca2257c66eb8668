package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/posoffline/internal/app"
	catalogDomain "github.com/allisson/posoffline/internal/catalog/domain"
	"github.com/allisson/posoffline/internal/config"
)

// shutdownTimeout bounds the graceful shutdown of the API and metrics servers.
const shutdownTimeout = 10 * time.Second

// RunServer starts the offline engine and the local control API with graceful shutdown support.
// It performs the initial load against the remote authority (falling back to the cached
// session when the server is unreachable), starts the connectivity monitor, the sync manager
// and session autosave, then serves the API and metrics until SIGINT/SIGTERM or a fatal error.
func RunServer(ctx context.Context, version string) error {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode based on log level
	gin.SetMode(cfg.GetGinMode())

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	// Get HTTP server from container (this initializes all dependencies)
	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	// Get Metrics server from container
	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	monitor, err := container.ConnectivityMonitor()
	if err != nil {
		return fmt.Errorf("failed to initialize connectivity monitor: %w", err)
	}
	manager, err := container.SyncManager()
	if err != nil {
		return fmt.Errorf("failed to initialize sync manager: %w", err)
	}
	hooks, err := container.LifecycleHooks()
	if err != nil {
		return fmt.Errorf("failed to initialize lifecycle hooks: %w", err)
	}
	remoteClient, err := container.RemoteClient()
	if err != nil {
		return fmt.Errorf("failed to initialize remote client: %w", err)
	}
	persistence, err := container.SessionPersistence()
	if err != nil {
		return fmt.Errorf("failed to initialize session persistence: %w", err)
	}
	sessionHandler, err := container.SessionHandler()
	if err != nil {
		return fmt.Errorf("failed to initialize session handler: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	outcome, err := hooks.Load(ctx, remoteClient, catalogDomain.EntityTypes)
	switch {
	case err != nil:
		logger.Warn("initial load failed, starting without a session", slog.Any("error", err))
	case outcome.Online:
		logger.Info("initial load completed online")
	default:
		logger.Info("initial load fell back to the cached session")
	}

	monitor.Start()
	manager.Start()
	persistence.StartAutosave(sessionHandler.Latest)
	defer func() {
		if err := persistence.SaveOnTeardown(sessionHandler.Latest()); err != nil {
			logger.Error("failed to save session on teardown", slog.Any("error", err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("api server error: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.Start(gctx); err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}

	// Shut both servers down on a signal or when either of them fails
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		var shutdownErrors []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("api server shutdown: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}
		return errors.Join(shutdownErrors...)
	})

	return g.Wait()
}
