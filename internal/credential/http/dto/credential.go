// Package dto provides data transfer objects for the credential endpoints.
package dto

import (
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/posoffline/internal/credential/domain"
	customValidation "github.com/allisson/posoffline/internal/validation"
)

// OfflineLoginRequest contains a login attempted against the local cache.
type OfflineLoginRequest struct {
	Login string `json:"login"`
	PIN   string `json:"pin"`
}

// Validate checks if the offline login request is valid.
func (r *OfflineLoginRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Login, validation.Required, customValidation.NotBlank, validation.Length(1, 255)),
		validation.Field(&r.PIN, validation.Required, validation.Length(1, 64)),
	)
}

// OnlineLoginRequest contains a secret to validate against the server.
type OnlineLoginRequest struct {
	UserID int64  `json:"user_id"`
	PIN    string `json:"pin"`
}

// Validate checks if the online login request is valid.
func (r *OnlineLoginRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.UserID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.PIN, validation.Required, validation.Length(1, 64)),
	)
}

// CredentialResponse represents a cached credential. The secret hash is never exposed.
type CredentialResponse struct {
	ID          int64     `json:"id"`
	Login       string    `json:"login"`
	DisplayName string    `json:"display_name"`
	CachedAt    time.Time `json:"cached_at"`
}

// ListCredentialsResponse wraps a list of cached credentials.
type ListCredentialsResponse struct {
	Data []CredentialResponse `json:"data"`
}

// MapCredentialToResponse converts a cached credential to an API response.
func MapCredentialToResponse(c *domain.CachedCredential) CredentialResponse {
	return CredentialResponse{
		ID:          c.ID,
		Login:       c.Login,
		DisplayName: c.DisplayName,
		CachedAt:    c.CachedAt,
	}
}

// MapCredentialsToListResponse converts cached credentials to an API response.
func MapCredentialsToListResponse(credentials []*domain.CachedCredential) ListCredentialsResponse {
	data := make([]CredentialResponse, 0, len(credentials))
	for _, c := range credentials {
		data = append(data, MapCredentialToResponse(c))
	}
	return ListCredentialsResponse{Data: data}
}
