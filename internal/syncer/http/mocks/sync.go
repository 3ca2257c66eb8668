// Package mocks provides mock implementations for testing the sync handlers.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/posoffline/internal/connectivity"
	"github.com/allisson/posoffline/internal/syncer"
)

// MockSyncer is a mock implementation of Syncer for testing.
type MockSyncer struct {
	mock.Mock
}

// ForceSyncNow mocks the ForceSyncNow method of Syncer.
func (m *MockSyncer) ForceSyncNow(ctx context.Context) (*syncer.PassResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncer.PassResult), args.Error(1)
}

// Status mocks the Status method of Syncer.
func (m *MockSyncer) Status() syncer.Status {
	args := m.Called()
	return args.Get(0).(syncer.Status)
}

// MockConnectivity is a mock implementation of Connectivity for testing.
type MockConnectivity struct {
	mock.Mock
}

// Status mocks the Status method of Connectivity.
func (m *MockConnectivity) Status() connectivity.Status {
	args := m.Called()
	return args.Get(0).(connectivity.Status)
}

// Recheck mocks the Recheck method of Connectivity.
func (m *MockConnectivity) Recheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockPendingCounter is a mock implementation of PendingCounter for testing.
type MockPendingCounter struct {
	mock.Mock
}

// CountPending mocks the CountPending method of PendingCounter.
func (m *MockPendingCounter) CountPending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
