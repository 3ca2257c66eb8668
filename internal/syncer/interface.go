package syncer

import (
	"context"
	"time"

	catalogDomain "github.com/allisson/posoffline/internal/catalog/domain"
	catalogUsecase "github.com/allisson/posoffline/internal/catalog/usecase"
	"github.com/allisson/posoffline/internal/connectivity"
	credentialDomain "github.com/allisson/posoffline/internal/credential/domain"
	outboxDomain "github.com/allisson/posoffline/internal/outbox/domain"
	outboxUsecase "github.com/allisson/posoffline/internal/outbox/usecase"
	"github.com/allisson/posoffline/internal/pubsub"
	"github.com/allisson/posoffline/internal/remote"
)

// Monitor reports reachability and publishes transitions.
type Monitor interface {
	IsOffline() bool
	Recheck(ctx context.Context) error
	Subscribe(fn func(connectivity.Event)) pubsub.Disposer
}

// Remote is the part of the remote authority the reconciliation pass uses.
type Remote interface {
	DispatchOperation(ctx context.Context, op *outboxDomain.PendingOperation) error
	PushSessionMetadata(ctx context.Context, metadata remote.SessionMetadata) error
	FetchCredentials(ctx context.Context) ([]*credentialDomain.RemoteCredential, error)
	FetchReferenceData(ctx context.Context, entityType string) ([]map[string]any, error)
}

// Queue is the pending-operation queue.
type Queue interface {
	Enqueue(ctx context.Context, input outboxUsecase.EnqueueInput) (*outboxDomain.PendingOperation, error)
	Drain(ctx context.Context, dispatcher outboxUsecase.Dispatcher) (*outboxDomain.DrainResult, error)
	CountPending(ctx context.Context) (int64, error)
	RecordError(ctx context.Context, e *outboxDomain.SyncError) error
	Sweep(ctx context.Context, operationsBefore, errorsBefore time.Time) (*outboxUsecase.SweepResult, error)
}

// Credentials refreshes the credential cache.
type Credentials interface {
	RefreshFromRemote(
		ctx context.Context,
		records []*credentialDomain.RemoteCredential,
	) (*credentialDomain.RefreshResult, error)
}

// Catalog replaces cached reference entity sets.
type Catalog interface {
	Replace(
		ctx context.Context,
		t catalogDomain.EntityType,
		records []map[string]any,
	) (*catalogUsecase.ReplaceResult, error)
}

// Sessions exposes the current session and its retention sweep.
type Sessions interface {
	CurrentSessionID() string
	Sweep(ctx context.Context, before time.Time) (int64, error)
}
