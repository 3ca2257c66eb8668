package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"

	apperrors "github.com/allisson/posoffline/internal/errors"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Remote errors.
var (
	// ErrUnexpectedResponse indicates a 2xx response that is not a genuine API
	// answer, such as a captive portal page.
	ErrUnexpectedResponse = apperrors.Wrap(apperrors.ErrTransport, "unexpected response from server")

	// ErrUnsupportedEnvelope indicates a batch payload with an unknown schema version.
	ErrUnsupportedEnvelope = apperrors.Wrap(apperrors.ErrInvalidInput, "unsupported envelope version")

	// ErrCredentialRejected indicates the server refused the credential.
	ErrCredentialRejected = apperrors.Wrap(apperrors.ErrAuth, "credential rejected by server")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap maps the status code onto the engine error taxonomy.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return apperrors.ErrAuth
	case e.StatusCode == http.StatusForbidden:
		return apperrors.ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return apperrors.ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return apperrors.ErrConflict
	case e.StatusCode == http.StatusTooManyRequests:
		return apperrors.ErrTransport
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return apperrors.ErrInvalidInput
	default:
		return apperrors.ErrTransport
	}
}

// transportError wraps a failure to get any response at all.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "transport failure: " + e.err.Error() }

func (e *transportError) Unwrap() []error { return []error{apperrors.ErrTransport, e.err} }

// IsConnectivityFailure reports whether err means the server could not be
// reached: no response, a timeout, DNS or refused connections, or a gateway
// status (502, 503, 504). Authorization rejections and other server errors
// are not connectivity failures.
func IsConnectivityFailure(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if apperrors.Is(err, apperrors.ErrAuth) {
		return false
	}

	var transportErr *transportError
	if errors.As(err, &transportErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, apperrors.ErrTransport)
}
