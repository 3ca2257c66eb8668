package connectivity

import (
	"time"

	apperrors "github.com/allisson/posoffline/internal/errors"
)

// State is the combined network and server reachability state.
type State string

// Monitor states.
const (
	StateReachable   State = "online_reachable"
	StateUnreachable State = "online_unreachable"
	StateOffline     State = "offline"
)

// EventType names a state transition.
type EventType string

// Transition events.
const (
	EventConnectionLost     EventType = "connection-lost"
	EventConnectionRestored EventType = "connection-restored"
	EventServerReachable    EventType = "server-reachable"
	EventServerUnreachable  EventType = "server-unreachable"
)

// Event is published on every state transition.
type Event struct {
	Type    EventType     `json:"type"`
	State   State         `json:"state"`
	Attempt int           `json:"attempt"`
	Latency time.Duration `json:"latency"`
	At      time.Time     `json:"at"`
}

// Status is a point-in-time snapshot of the monitor.
type Status struct {
	State         State         `json:"state"`
	NetworkOnline bool          `json:"network_online"`
	Reachable     bool          `json:"reachable"`
	Attempt       int           `json:"attempt"`
	LastProbe     time.Time     `json:"last_probe,omitzero"`
	LastLatency   time.Duration `json:"last_latency"`
	LastError     string        `json:"last_error,omitempty"`
	ProbeInterval time.Duration `json:"probe_interval"`
	ProbeTimeout  time.Duration `json:"probe_timeout"`
	Running       bool          `json:"running"`
}

// Connectivity errors.
var (
	// ErrWaitTimeout indicates WaitForConnection gave up before the server became reachable.
	ErrWaitTimeout = apperrors.Wrap(apperrors.ErrTransport, "timed out waiting for connection")

	// ErrNetworkDown indicates the host has no usable network interface.
	ErrNetworkDown = apperrors.Wrap(apperrors.ErrTransport, "network is down")
)
