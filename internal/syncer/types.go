package syncer

import (
	"time"

	catalogDomain "github.com/allisson/posoffline/internal/catalog/domain"
	credentialDomain "github.com/allisson/posoffline/internal/credential/domain"
	outboxDomain "github.com/allisson/posoffline/internal/outbox/domain"
	outboxUsecase "github.com/allisson/posoffline/internal/outbox/usecase"
)

// State is the manager state.
type State string

// Manager states.
const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
)

// Phase names one step of a reconciliation pass.
type Phase string

// Reconciliation phases, in execution order.
const (
	PhaseDrain            Phase = "drain"
	PhaseSessionMetadata  Phase = "session_metadata"
	PhaseReferenceRefresh Phase = "reference_refresh"
	PhaseRetentionSweep   Phase = "retention_sweep"
)

// EventType names a sync event.
type EventType string

// Sync events.
const (
	EventSyncStarted   EventType = "sync-started"
	EventSyncCompleted EventType = "sync-completed"
	EventSyncFailed    EventType = "sync-failed"
)

// Event is published at the start and end of every pass. Result is nil for
// EventSyncStarted.
type Event struct {
	Type   EventType   `json:"type"`
	Result *PassResult `json:"result,omitempty"`
	At     time.Time   `json:"at"`
}

// PassResult reports what one reconciliation pass did.
type PassResult struct {
	StartedAt       time.Time                        `json:"started_at"`
	FinishedAt      time.Time                        `json:"finished_at"`
	Drain           *outboxDomain.DrainResult        `json:"drain,omitempty"`
	MetadataPushed  bool                             `json:"metadata_pushed"`
	Credentials     *credentialDomain.RefreshResult  `json:"credentials,omitempty"`
	Entities        map[catalogDomain.EntityType]int `json:"entities,omitempty"`
	Sweep           *outboxUsecase.SweepResult       `json:"sweep,omitempty"`
	SessionsEvicted int64                            `json:"sessions_evicted"`
	PhaseErrors     map[Phase]error                  `json:"-"`
}

// Failed reports whether any phase failed.
func (r *PassResult) Failed() bool {
	return len(r.PhaseErrors) > 0
}

// ErrorMessages returns the phase errors as strings.
func (r *PassResult) ErrorMessages() map[string]string {
	messages := make(map[string]string, len(r.PhaseErrors))
	for phase, err := range r.PhaseErrors {
		messages[string(phase)] = err.Error()
	}
	return messages
}

// Status is a snapshot of the manager.
type Status struct {
	State    State       `json:"state"`
	Passes   int64       `json:"passes"`
	LastPass *PassResult `json:"last_pass,omitempty"`
}
