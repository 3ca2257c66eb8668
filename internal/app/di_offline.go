package app

import (
	"context"
	"fmt"
	"sync"

	catalogHTTP "github.com/allisson/posoffline/internal/catalog/http"
	catalogRepository "github.com/allisson/posoffline/internal/catalog/repository"
	catalogUsecase "github.com/allisson/posoffline/internal/catalog/usecase"
	credentialHTTP "github.com/allisson/posoffline/internal/credential/http"
	credentialRepository "github.com/allisson/posoffline/internal/credential/repository"
	credentialService "github.com/allisson/posoffline/internal/credential/service"
	credentialUsecase "github.com/allisson/posoffline/internal/credential/usecase"
	"github.com/allisson/posoffline/internal/lifecycle"
	"github.com/allisson/posoffline/internal/metrics"
	outboxHTTP "github.com/allisson/posoffline/internal/outbox/http"
	outboxRepository "github.com/allisson/posoffline/internal/outbox/repository"
	outboxUsecase "github.com/allisson/posoffline/internal/outbox/usecase"
	"github.com/allisson/posoffline/internal/remote"
	sessionHTTP "github.com/allisson/posoffline/internal/session/http"
	sessionRepository "github.com/allisson/posoffline/internal/session/repository"
	sessionUsecase "github.com/allisson/posoffline/internal/session/usecase"
	"github.com/allisson/posoffline/internal/syncer"
	syncerHTTP "github.com/allisson/posoffline/internal/syncer/http"
)

// offlineComponents holds the use cases and handlers of the offline layer.
type offlineComponents struct {
	outboxUseCase      outboxUsecase.UseCase
	authenticator      *credentialUsecase.Authenticator
	sessionPersistence *sessionUsecase.Persistence
	catalogUseCase     *catalogUsecase.CatalogUseCase
	syncManager        *syncer.Manager
	lifecycleHooks     *lifecycle.Hooks

	queueHandler      *outboxHTTP.QueueHandler
	syncHandler       *syncerHTTP.SyncHandler
	credentialHandler *credentialHTTP.CredentialHandler
	sessionHandler    *sessionHTTP.SessionHandler
	catalogHandler    *catalogHTTP.CatalogHandler

	outboxUseCaseInit      sync.Once
	authenticatorInit      sync.Once
	sessionPersistenceInit sync.Once
	catalogUseCaseInit     sync.Once
	syncManagerInit        sync.Once
	lifecycleHooksInit     sync.Once
	queueHandlerInit       sync.Once
	syncHandlerInit        sync.Once
	credentialHandlerInit  sync.Once
	sessionHandlerInit     sync.Once
	catalogHandlerInit     sync.Once
}

// OutboxUseCase returns the pending-operation queue, wrapped with metrics when enabled.
func (c *Container) OutboxUseCase() (outboxUsecase.UseCase, error) {
	var err error
	c.offline.outboxUseCaseInit.Do(func() {
		c.offline.outboxUseCase, err = c.initOutboxUseCase()
		if err != nil {
			c.initErrors["outboxUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxUseCase"]; exists {
		return nil, storedErr
	}
	return c.offline.outboxUseCase, nil
}

// Authenticator returns the credential cache and offline authenticator.
func (c *Container) Authenticator() (*credentialUsecase.Authenticator, error) {
	var err error
	c.offline.authenticatorInit.Do(func() {
		c.offline.authenticator, err = c.initAuthenticator()
		if err != nil {
			c.initErrors["authenticator"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["authenticator"]; exists {
		return nil, storedErr
	}
	return c.offline.authenticator, nil
}

// SessionPersistence returns the session persistence use case.
func (c *Container) SessionPersistence() (*sessionUsecase.Persistence, error) {
	var err error
	c.offline.sessionPersistenceInit.Do(func() {
		c.offline.sessionPersistence, err = c.initSessionPersistence()
		if err != nil {
			c.initErrors["sessionPersistence"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sessionPersistence"]; exists {
		return nil, storedErr
	}
	return c.offline.sessionPersistence, nil
}

// CatalogUseCase returns the reference data cache.
func (c *Container) CatalogUseCase() (*catalogUsecase.CatalogUseCase, error) {
	var err error
	c.offline.catalogUseCaseInit.Do(func() {
		c.offline.catalogUseCase, err = c.initCatalogUseCase()
		if err != nil {
			c.initErrors["catalogUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["catalogUseCase"]; exists {
		return nil, storedErr
	}
	return c.offline.catalogUseCase, nil
}

// SyncManager returns the sync manager. It is created stopped.
func (c *Container) SyncManager() (*syncer.Manager, error) {
	var err error
	c.offline.syncManagerInit.Do(func() {
		c.offline.syncManager, err = c.initSyncManager()
		if err != nil {
			c.initErrors["syncManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["syncManager"]; exists {
		return nil, storedErr
	}
	return c.offline.syncManager, nil
}

// LifecycleHooks returns the load lifecycle hooks.
func (c *Container) LifecycleHooks() (*lifecycle.Hooks, error) {
	var err error
	c.offline.lifecycleHooksInit.Do(func() {
		c.offline.lifecycleHooks, err = c.initLifecycleHooks()
		if err != nil {
			c.initErrors["lifecycleHooks"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["lifecycleHooks"]; exists {
		return nil, storedErr
	}
	return c.offline.lifecycleHooks, nil
}

// QueueHandler returns the HTTP handler for the pending-operation queue.
func (c *Container) QueueHandler() (*outboxHTTP.QueueHandler, error) {
	var err error
	c.offline.queueHandlerInit.Do(func() {
		c.offline.queueHandler, err = c.initQueueHandler()
		if err != nil {
			c.initErrors["queueHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["queueHandler"]; exists {
		return nil, storedErr
	}
	return c.offline.queueHandler, nil
}

// SyncHandler returns the HTTP handler for sync status and manual sync.
func (c *Container) SyncHandler() (*syncerHTTP.SyncHandler, error) {
	var err error
	c.offline.syncHandlerInit.Do(func() {
		c.offline.syncHandler, err = c.initSyncHandler()
		if err != nil {
			c.initErrors["syncHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["syncHandler"]; exists {
		return nil, storedErr
	}
	return c.offline.syncHandler, nil
}

// CredentialHandler returns the HTTP handler for offline and online logins.
func (c *Container) CredentialHandler() (*credentialHTTP.CredentialHandler, error) {
	var err error
	c.offline.credentialHandlerInit.Do(func() {
		authenticator, aerr := c.Authenticator()
		if aerr != nil {
			err = fmt.Errorf("failed to get authenticator for credential handler: %w", aerr)
			c.initErrors["credentialHandler"] = err
			return
		}
		c.offline.credentialHandler = credentialHTTP.NewCredentialHandler(authenticator, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["credentialHandler"]; exists {
		return nil, storedErr
	}
	return c.offline.credentialHandler, nil
}

// SessionHandler returns the HTTP handler for the current session.
func (c *Container) SessionHandler() (*sessionHTTP.SessionHandler, error) {
	var err error
	c.offline.sessionHandlerInit.Do(func() {
		persistence, perr := c.SessionPersistence()
		if perr != nil {
			err = fmt.Errorf("failed to get session persistence for session handler: %w", perr)
			c.initErrors["sessionHandler"] = err
			return
		}
		c.offline.sessionHandler = sessionHTTP.NewSessionHandler(persistence, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sessionHandler"]; exists {
		return nil, storedErr
	}
	return c.offline.sessionHandler, nil
}

// CatalogHandler returns the HTTP handler for cached reference data.
func (c *Container) CatalogHandler() (*catalogHTTP.CatalogHandler, error) {
	var err error
	c.offline.catalogHandlerInit.Do(func() {
		catalog, cerr := c.CatalogUseCase()
		if cerr != nil {
			err = fmt.Errorf("failed to get catalog use case for catalog handler: %w", cerr)
			c.initErrors["catalogHandler"] = err
			return
		}
		c.offline.catalogHandler = catalogHTTP.NewCatalogHandler(catalog, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["catalogHandler"]; exists {
		return nil, storedErr
	}
	return c.offline.catalogHandler, nil
}

// initOutboxUseCase creates the pending-operation queue with all its dependencies.
func (c *Container) initOutboxUseCase() (outboxUsecase.UseCase, error) {
	s, err := c.Store()
	if err != nil {
		return nil, fmt.Errorf("failed to get store for outbox use case: %w", err)
	}

	payloadSealer, err := c.Sealer()
	if err != nil {
		return nil, fmt.Errorf("failed to get sealer for outbox use case: %w", err)
	}

	baseUseCase := outboxUsecase.NewOutboxUseCase(
		outboxUsecase.Config{
			MaxAttempts:    c.config.SyncMaxAttempts,
			BatchSize:      c.config.SyncBatchSize,
			StagingSize:    c.config.StagingBufferSize,
			RetryBaseDelay: c.config.SyncRetryBaseDelay,
			RetryMaxDelay:  c.config.SyncRetryMaxDelay,
			Unreachable:    remote.IsConnectivityFailure,
		},
		s,
		outboxRepository.NewSQLiteOperationRepository(s),
		outboxRepository.NewSQLiteSyncErrorRepository(s),
		s,
		payloadSealer,
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for outbox use case: %w", err)
		}
		return outboxUsecase.NewOutboxUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initAuthenticator creates the credential cache with all its dependencies.
func (c *Container) initAuthenticator() (*credentialUsecase.Authenticator, error) {
	s, err := c.Store()
	if err != nil {
		return nil, fmt.Errorf("failed to get store for authenticator: %w", err)
	}

	sessions, err := c.SessionPersistence()
	if err != nil {
		return nil, fmt.Errorf("failed to get session persistence for authenticator: %w", err)
	}

	client, err := c.RemoteClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get remote client for authenticator: %w", err)
	}

	hasher, err := credentialService.NewHasher(c.config.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret hasher: %w", err)
	}

	return credentialUsecase.NewAuthenticator(
		credentialUsecase.Config{
			AttemptsPerMinute: c.config.OfflineAuthRatePerMinute,
			Burst:             c.config.OfflineAuthBurst,
		},
		credentialRepository.NewSQLiteCredentialRepository(s),
		sessions,
		client,
		hasher,
		c.Logger(),
	), nil
}

// initSessionPersistence creates the session persistence with all its dependencies.
func (c *Container) initSessionPersistence() (*sessionUsecase.Persistence, error) {
	s, err := c.Store()
	if err != nil {
		return nil, fmt.Errorf("failed to get store for session persistence: %w", err)
	}

	flags, err := c.FlagStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get flag store for session persistence: %w", err)
	}

	client, err := c.RemoteClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get remote client for session persistence: %w", err)
	}

	return sessionUsecase.NewPersistence(
		sessionUsecase.Config{AutosaveInterval: c.config.SessionAutosaveInterval},
		sessionRepository.NewSQLiteSessionRepository(s),
		flags,
		client,
		c.Logger(),
	), nil
}

// initCatalogUseCase creates the reference data cache.
func (c *Container) initCatalogUseCase() (*catalogUsecase.CatalogUseCase, error) {
	s, err := c.Store()
	if err != nil {
		return nil, fmt.Errorf("failed to get store for catalog use case: %w", err)
	}
	return catalogUsecase.NewCatalogUseCase(catalogRepository.NewSQLiteEntityRepository(s), c.Logger()), nil
}

// initSyncManager creates the sync manager with all its dependencies.
func (c *Container) initSyncManager() (*syncer.Manager, error) {
	queue, err := c.OutboxUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox use case for sync manager: %w", err)
	}

	client, err := c.RemoteClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get remote client for sync manager: %w", err)
	}

	monitor, err := c.ConnectivityMonitor()
	if err != nil {
		return nil, fmt.Errorf("failed to get connectivity monitor for sync manager: %w", err)
	}

	authenticator, err := c.Authenticator()
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticator for sync manager: %w", err)
	}

	catalog, err := c.CatalogUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog use case for sync manager: %w", err)
	}

	sessions, err := c.SessionPersistence()
	if err != nil {
		return nil, fmt.Errorf("failed to get session persistence for sync manager: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for sync manager: %w", err)
	}

	return syncer.NewManager(
		syncer.Config{
			Interval:           c.config.SyncInterval,
			Debounce:           c.config.SyncDebounce,
			OperationRetention: c.config.RetentionOperations,
			SessionRetention:   c.config.RetentionSessions,
			ErrorRetention:     c.config.RetentionErrors,
		},
		queue,
		client,
		monitor,
		authenticator,
		catalog,
		sessions,
		businessMetrics,
		c.Logger(),
	), nil
}

// initLifecycleHooks creates the load lifecycle hooks.
func (c *Container) initLifecycleHooks() (*lifecycle.Hooks, error) {
	sessions, err := c.SessionPersistence()
	if err != nil {
		return nil, fmt.Errorf("failed to get session persistence for lifecycle hooks: %w", err)
	}

	authenticator, err := c.Authenticator()
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticator for lifecycle hooks: %w", err)
	}

	catalog, err := c.CatalogUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog use case for lifecycle hooks: %w", err)
	}

	return lifecycle.NewHooks(sessions, authenticator, catalog, c.Logger()), nil
}

// initQueueHandler creates the queue HTTP handler.
func (c *Container) initQueueHandler() (*outboxHTTP.QueueHandler, error) {
	manager, err := c.SyncManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get sync manager for queue handler: %w", err)
	}

	queue, err := c.OutboxUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox use case for queue handler: %w", err)
	}

	return outboxHTTP.NewQueueHandler(manager, queue, c.Logger()), nil
}

// initSyncHandler creates the sync HTTP handler.
func (c *Container) initSyncHandler() (*syncerHTTP.SyncHandler, error) {
	manager, err := c.SyncManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get sync manager for sync handler: %w", err)
	}

	monitor, err := c.ConnectivityMonitor()
	if err != nil {
		return nil, fmt.Errorf("failed to get connectivity monitor for sync handler: %w", err)
	}

	queue, err := c.OutboxUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox use case for sync handler: %w", err)
	}

	return syncerHTTP.NewSyncHandler(manager, monitor, queue, c.Logger()), nil
}

// observeEngineState feeds the queue depth and reachability gauges from the
// outbox and the connectivity monitor.
func (c *Container) observeEngineState(provider *metrics.Provider) error {
	queue, err := c.OutboxUseCase()
	if err != nil {
		return fmt.Errorf("failed to get outbox use case for metrics: %w", err)
	}

	monitor, err := c.ConnectivityMonitor()
	if err != nil {
		return fmt.Errorf("failed to get connectivity monitor for metrics: %w", err)
	}

	return provider.ObserveState(metrics.StateSources{
		Queue: func(ctx context.Context) (metrics.QueueDepth, error) {
			stats, err := queue.Stats(ctx)
			if err != nil {
				return metrics.QueueDepth{}, err
			}
			return metrics.QueueDepth{
				Pending:      stats.Pending,
				DeadLettered: stats.DeadLettered,
				Staged:       int64(stats.Staged),
			}, nil
		},
		Link: func() metrics.LinkState {
			status := monitor.Status()
			return metrics.LinkState{Reachable: status.Reachable, Attempt: status.Attempt}
		},
	})
}
