// Package mocks provides mock implementations for testing the credential handlers.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/posoffline/internal/credential/domain"
	sessionDomain "github.com/allisson/posoffline/internal/session/domain"
)

// MockCredentialUseCase is a mock implementation of credential UseCase for testing.
type MockCredentialUseCase struct {
	mock.Mock
}

// CacheCredential mocks the CacheCredential method of UseCase.
func (m *MockCredentialUseCase) CacheCredential(
	ctx context.Context,
	remote *domain.RemoteCredential,
) (*domain.CachedCredential, error) {
	args := m.Called(ctx, remote)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CachedCredential), args.Error(1)
}

// AuthenticateOffline mocks the AuthenticateOffline method of UseCase.
func (m *MockCredentialUseCase) AuthenticateOffline(
	ctx context.Context,
	login, secret string,
) (*sessionDomain.SessionRecord, error) {
	args := m.Called(ctx, login, secret)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sessionDomain.SessionRecord), args.Error(1)
}

// ValidateOnline mocks the ValidateOnline method of UseCase.
func (m *MockCredentialUseCase) ValidateOnline(
	ctx context.Context,
	userID int64,
	secret string,
) (*domain.CachedCredential, error) {
	args := m.Called(ctx, userID, secret)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CachedCredential), args.Error(1)
}

// RefreshFromRemote mocks the RefreshFromRemote method of UseCase.
func (m *MockCredentialUseCase) RefreshFromRemote(
	ctx context.Context,
	records []*domain.RemoteCredential,
) (*domain.RefreshResult, error) {
	args := m.Called(ctx, records)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshResult), args.Error(1)
}

// List mocks the List method of UseCase.
func (m *MockCredentialUseCase) List(ctx context.Context) ([]*domain.CachedCredential, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CachedCredential), args.Error(1)
}

// Clear mocks the Clear method of UseCase.
func (m *MockCredentialUseCase) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
