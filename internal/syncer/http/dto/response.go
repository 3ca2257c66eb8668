// Package dto provides data transfer objects for the sync endpoints.
package dto

import (
	"github.com/allisson/posoffline/internal/connectivity"
	"github.com/allisson/posoffline/internal/syncer"
)

// StatusResponse combines connectivity, sync manager and queue state.
type StatusResponse struct {
	Offline      bool                `json:"offline"`
	Connectivity connectivity.Status `json:"connectivity"`
	Sync         syncer.Status       `json:"sync"`
	Pending      int64               `json:"pending"`
}

// PassResponse reports one forced reconciliation pass.
type PassResponse struct {
	*syncer.PassResult
	Failed bool              `json:"failed"`
	Errors map[string]string `json:"errors,omitempty"`
}

// MapPassToResponse converts a pass result to an API response.
func MapPassToResponse(result *syncer.PassResult) PassResponse {
	return PassResponse{
		PassResult: result,
		Failed:     result.Failed(),
		Errors:     result.ErrorMessages(),
	}
}
