// Package mocks provides mock implementations for testing the session handlers.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/posoffline/internal/session/domain"
)

// MockSessionStore is a mock implementation of SessionStore for testing.
type MockSessionStore struct {
	mock.Mock
}

// Save mocks the Save method of SessionStore.
func (m *MockSessionStore) Save(ctx context.Context, live *domain.LiveSession) (*domain.SessionRecord, error) {
	args := m.Called(ctx, live)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SessionRecord), args.Error(1)
}

// Restore mocks the Restore method of SessionStore.
func (m *MockSessionStore) Restore(ctx context.Context) (*domain.SessionRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SessionRecord), args.Error(1)
}

// Logout mocks the Logout method of SessionStore.
func (m *MockSessionStore) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
