package connectivity

import (
	"context"
	"net"
	"sync"
	"time"
)

// NetworkSignal reports OS-level network availability.
type NetworkSignal interface {
	// Online reports the current network state.
	Online() bool
	// Watch delivers every change until ctx is done, then closes the channel.
	Watch(ctx context.Context) <-chan bool
}

// InterfaceSignal polls the host network interfaces. The host is online when
// any non-loopback interface is up and carries an address.
type InterfaceSignal struct {
	pollInterval time.Duration
	online       func() bool
}

// NewInterfaceSignal creates an InterfaceSignal polling every pollInterval.
func NewInterfaceSignal(pollInterval time.Duration) *InterfaceSignal {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &InterfaceSignal{pollInterval: pollInterval, online: hostOnline}
}

// Online implements NetworkSignal.
func (s *InterfaceSignal) Online() bool {
	return s.online()
}

// Watch implements NetworkSignal.
func (s *InterfaceSignal) Watch(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)
	go func() {
		defer close(ch)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		last := s.online()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current := s.online()
				if current == last {
					continue
				}
				last = current
				select {
				case ch <- current:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}

func hostOnline() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// ManualSignal is a NetworkSignal driven by the host application.
type ManualSignal struct {
	mu       sync.Mutex
	online   bool
	nextID   uint64
	watchers map[uint64]chan bool
}

// NewManualSignal creates a ManualSignal starting in the given state.
func NewManualSignal(online bool) *ManualSignal {
	return &ManualSignal{online: online, watchers: make(map[uint64]chan bool)}
}

// Online implements NetworkSignal.
func (s *ManualSignal) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Set records a network transition and notifies watchers when the state changed.
func (s *ManualSignal) Set(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.online == online {
		return
	}
	s.online = online
	for _, ch := range s.watchers {
		// Keep only the latest state for slow watchers.
		select {
		case ch <- online:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}

// Watch implements NetworkSignal.
func (s *ManualSignal) Watch(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.mu.Unlock()

	context.AfterFunc(ctx, func() {
		s.mu.Lock()
		delete(s.watchers, id)
		close(ch)
		s.mu.Unlock()
	})
	return ch
}

// Watchers returns the number of active watchers.
func (s *ManualSignal) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}
