// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/allisson/posoffline/internal/config"
	"github.com/allisson/posoffline/internal/connectivity"
	"github.com/allisson/posoffline/internal/flagstore"
	"github.com/allisson/posoffline/internal/http"
	"github.com/allisson/posoffline/internal/metrics"
	"github.com/allisson/posoffline/internal/remote"
	"github.com/allisson/posoffline/internal/sealer"
	"github.com/allisson/posoffline/internal/store"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	store           *store.Store
	flagStore       flagstore.Store
	sealer          *sealer.Sealer
	remoteClient    *remote.Client
	monitor         *connectivity.Monitor
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics

	// Offline components
	offline offlineComponents

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	storeInit           sync.Once
	flagStoreInit       sync.Once
	sealerInit          sync.Once
	remoteClientInit    sync.Once
	monitorInit         sync.Once
	metricsProviderInit sync.Once
	businessMetricsInit sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// Store returns the durable local store, opening and migrating it on first access.
func (c *Container) Store() (*store.Store, error) {
	var err error
	c.storeInit.Do(func() {
		c.store, err = c.initStore()
		if err != nil {
			c.initErrors["store"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["store"]; exists {
		return nil, storedErr
	}
	return c.store, nil
}

// DB returns the database connection behind the durable store.
func (c *Container) DB() (*sql.DB, error) {
	s, err := c.Store()
	if err != nil {
		return nil, err
	}
	return s.DB(), nil
}

// FlagStore returns the fast-path marker store.
func (c *Container) FlagStore() (flagstore.Store, error) {
	var err error
	c.flagStoreInit.Do(func() {
		c.flagStore, err = flagstore.Open(c.config.FlagStoreURL)
		if err != nil {
			err = fmt.Errorf("failed to open flag store: %w", err)
			c.initErrors["flagStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["flagStore"]; exists {
		return nil, storedErr
	}
	return c.flagStore, nil
}

// Sealer returns the payload sealer. It is a pass-through when no key URI is configured.
func (c *Container) Sealer() (*sealer.Sealer, error) {
	var err error
	c.sealerInit.Do(func() {
		c.sealer, err = sealer.New(context.Background(), c.config.PayloadKeyURI)
		if err != nil {
			c.initErrors["sealer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sealer"]; exists {
		return nil, storedErr
	}
	return c.sealer, nil
}

// RemoteClient returns the client of the remote authority.
func (c *Container) RemoteClient() (*remote.Client, error) {
	var err error
	c.remoteClientInit.Do(func() {
		c.remoteClient, err = c.initRemoteClient()
		if err != nil {
			c.initErrors["remoteClient"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["remoteClient"]; exists {
		return nil, storedErr
	}
	return c.remoteClient, nil
}

// ConnectivityMonitor returns the connectivity monitor. It is created stopped.
func (c *Container) ConnectivityMonitor() (*connectivity.Monitor, error) {
	var err error
	c.monitorInit.Do(func() {
		c.monitor, err = c.initConnectivityMonitor()
		if err != nil {
			c.initErrors["monitor"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["monitor"]; exists {
		return nil, storedErr
	}
	return c.monitor, nil
}

// MetricsProvider returns the OpenTelemetry metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		c.metricsProvider, err = metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			err = fmt.Errorf("failed to create metrics provider: %w", err)
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. It records nothing when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// HTTPServer returns the local control API server.
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	// Stop background loops before closing what they use
	if c.offline.syncManager != nil {
		c.offline.syncManager.Destroy()
	}
	if c.monitor != nil {
		c.monitor.Stop()
	}
	if c.offline.sessionPersistence != nil {
		c.offline.sessionPersistence.Stop()
	}

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	// Waits for in-flight session beacons
	if c.remoteClient != nil {
		c.remoteClient.Close()
	}

	if c.flagStore != nil {
		if err := c.flagStore.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("flag store close: %w", err))
		}
	}

	if c.sealer != nil {
		if err := c.sealer.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("sealer close: %w", err))
		}
	}

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("store close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initStore opens the durable store and brings its schema up to date.
func (c *Container) initStore() (*store.Store, error) {
	s, err := store.Open(context.Background(), store.Config{
		Path:        c.config.StorePath,
		QuotaBytes:  c.config.StoreQuotaBytes,
		BusyTimeout: c.config.StoreBusyTimeout,
		MaxAttempts: c.config.StoreMaxAttempts,
		RetryBase:   c.config.StoreRetryBase,
	}, c.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if s.Corrupted() {
		c.Logger().Warn("store failed verification, run the reset command to rebuild it",
			slog.String("path", c.config.StorePath),
		)
	}
	return s, nil
}

// initRemoteClient creates the remote authority client.
func (c *Container) initRemoteClient() (*remote.Client, error) {
	client, err := remote.NewClient(remote.Config{
		BaseURL:    c.config.RemoteBaseURL,
		Timeout:    c.config.RemoteTimeout,
		ProbePath:  c.config.ProbePath,
		BeaconPath: c.config.SessionBeaconPath,
	}, c.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create remote client: %w", err)
	}
	return client, nil
}

// initConnectivityMonitor creates the monitor probing the remote authority.
func (c *Container) initConnectivityMonitor() (*connectivity.Monitor, error) {
	client, err := c.RemoteClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get remote client for connectivity monitor: %w", err)
	}

	return connectivity.NewMonitor(
		connectivity.Config{
			ProbeInterval: c.config.ProbeInterval,
			ProbeTimeout:  c.config.ProbeTimeout,
			BaseDelay:     c.config.ReconnectBaseDelay,
			MaxDelay:      c.config.ReconnectMaxDelay,
			MaxAttempts:   c.config.ReconnectMaxAttempts,
		},
		client,
		connectivity.NewInterfaceSignal(0),
		c.Logger(),
	), nil
}

// initBusinessMetrics creates the business metrics recorder.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}

	businessMetrics, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}
	return businessMetrics, nil
}

// initHTTPServer creates the HTTP server with all its dependencies.
func (c *Container) initHTTPServer() (*http.Server, error) {
	logger := c.Logger()

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	queueHandler, err := c.QueueHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue handler for http server: %w", err)
	}

	syncHandler, err := c.SyncHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get sync handler for http server: %w", err)
	}

	credentialHandler, err := c.CredentialHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get credential handler for http server: %w", err)
	}

	sessionHandler, err := c.SessionHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get session handler for http server: %w", err)
	}

	catalogHandler, err := c.CatalogHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog handler for http server: %w", err)
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, logger)
	server.SetupRouter(
		c.config,
		queueHandler,
		syncHandler,
		credentialHandler,
		sessionHandler,
		catalogHandler,
		provider,
		c.config.MetricsNamespace,
	)

	return server, nil
}

// initMetricsServer creates the metrics server when metrics are enabled.
func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}
	if provider == nil {
		return nil, nil
	}

	if err := c.observeEngineState(provider); err != nil {
		return nil, fmt.Errorf("failed to observe engine state for metrics server: %w", err)
	}

	return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider), nil
}
