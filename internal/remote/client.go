// Package remote is the HTTP/JSON client for the remote authority: operation
// dispatch, session metadata, credential and reference data refresh, PIN
// validation, the reachability probe and the teardown beacon.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	credentialDomain "github.com/allisson/posoffline/internal/credential/domain"
	outboxDomain "github.com/allisson/posoffline/internal/outbox/domain"
)

// Endpoint paths.
const (
	PathSyncPrefix      = "/pdc_pos_offline/sync/"
	PathSessionMetadata = "/pdc_pos_offline/session_metadata"
	PathCredentials     = "/pdc_pos_offline/credentials"
	PathReferencePrefix = "/pdc_pos_offline/reference/"
	PathValidatePin     = "/pdc_pos_offline/validate_pin"

	// HeaderIdempotencyKey carries the correlation id of a dispatched operation.
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Config holds remote client settings.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	ProbePath     string
	BeaconPath    string
	BeaconTimeout time.Duration
	UserAgent     string
}

// Client talks to the remote authority.
type Client struct {
	config  Config
	baseURL *url.URL
	http    *http.Client
	logger  *slog.Logger
	rpcID   atomic.Int64
	beacons sync.WaitGroup
}

// NewClient creates a Client. Redirects are never followed so that a captive
// portal cannot pass for the server.
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.ProbePath == "" {
		config.ProbePath = "/web/webclient/version_info"
	}
	if config.BeaconPath == "" {
		config.BeaconPath = "/pdc_pos_offline/session_beacon"
	}
	if config.BeaconTimeout <= 0 {
		config.BeaconTimeout = 2 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "posoffline"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid remote base url scheme %q", baseURL.Scheme)
	}

	return &Client{
		config:  config,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: config.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}, nil
}

// SessionMetadata is pushed to the remote session record after each drain.
type SessionMetadata struct {
	SessionID    string    `json:"session_id,omitempty"`
	UserID       int64     `json:"user_id,omitempty"`
	ConfigID     int64     `json:"config_id,omitempty"`
	PendingCount int64     `json:"pending_count"`
	OfflineMode  bool      `json:"offline_mode"`
	Timestamp    time.Time `json:"timestamp"`
}

// DispatchOperation delivers op to the endpoint for its kind. The correlation
// id is sent as the idempotency key so retries are deduplicated remotely.
func (c *Client) DispatchOperation(ctx context.Context, op *outboxDomain.PendingOperation) error {
	body := struct {
		ID            string          `json:"id"`
		Kind          string          `json:"kind"`
		CorrelationID string          `json:"correlation_id"`
		CreatedAt     time.Time       `json:"created_at"`
		Attempts      int             `json:"attempts"`
		Payload       json.RawMessage `json:"payload"`
	}{
		ID:            op.ID.String(),
		Kind:          string(op.Kind),
		CorrelationID: op.CorrelationID,
		CreatedAt:     op.CreatedAt,
		Attempts:      op.Attempts,
		Payload:       op.JSONPayload(),
	}

	header := http.Header{}
	header.Set(HeaderIdempotencyKey, op.CorrelationID)
	return c.doJSON(ctx, http.MethodPost, PathSyncPrefix+string(op.Kind), header, body, nil)
}

// PushSessionMetadata updates the remote session record.
func (c *Client) PushSessionMetadata(ctx context.Context, metadata SessionMetadata) error {
	return c.doJSON(ctx, http.MethodPost, PathSessionMetadata, nil, metadata, nil)
}

// envelope is the versioned batch schema for credential and reference data.
type envelope struct {
	Version int               `json:"version"`
	Records []json.RawMessage `json:"records"`
}

// EnvelopeVersion is the batch schema version this client understands.
const EnvelopeVersion = 1

func (c *Client) fetchEnvelope(ctx context.Context, path string) ([]json.RawMessage, error) {
	var env envelope
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &env); err != nil {
		return nil, err
	}
	if env.Version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedEnvelope, env.Version)
	}
	return env.Records, nil
}

// FetchCredentials pulls the authoritative credential records.
func (c *Client) FetchCredentials(ctx context.Context) ([]*credentialDomain.RemoteCredential, error) {
	raw, err := c.fetchEnvelope(ctx, PathCredentials)
	if err != nil {
		return nil, err
	}

	records := make([]*credentialDomain.RemoteCredential, 0, len(raw))
	for _, r := range raw {
		var record credentialDomain.RemoteCredential
		if err := json.Unmarshal(r, &record); err != nil {
			c.logger.Warn("skipping malformed credential record", slog.Any("error", err))
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

// FetchReferenceData pulls one reference entity set. A server that does not
// publish the set answers 404, surfaced as ErrNotFound.
func (c *Client) FetchReferenceData(ctx context.Context, entityType string) ([]map[string]any, error) {
	raw, err := c.fetchEnvelope(ctx, PathReferencePrefix+url.PathEscape(entityType))
	if err != nil {
		return nil, err
	}

	records := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		var record map[string]any
		decoder := json.NewDecoder(bytes.NewReader(r))
		decoder.UseNumber()
		if err := decoder.Decode(&record); err != nil || record == nil {
			c.logger.Warn("skipping malformed reference record",
				slog.String("entity_type", entityType),
				slog.Any("error", err),
			)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      int64  `json:"id"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// rpcSessionExpired is the error code the server uses when the caller's web
// session is no longer valid.
const rpcSessionExpired = 100

func (c *Client) call(ctx context.Context, path string, params, result any) error {
	req := rpcRequest{JSONRPC: "2.0", Method: "call", ID: c.rpcID.Add(1), Params: params}

	var resp rpcResponse
	if err := c.doJSON(ctx, http.MethodPost, path, nil, req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		if resp.Error.Code == rpcSessionExpired {
			return fmt.Errorf("%w: %s", ErrCredentialRejected, resp.Error.Message)
		}
		return fmt.Errorf("%w: rpc error %d: %s", ErrUnexpectedResponse, resp.Error.Code, resp.Error.Message)
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(resp.Result, result)
}

// ValidateCredential asks the server to verify a secret hash for userID.
func (c *Client) ValidateCredential(
	ctx context.Context,
	userID int64,
	secretHash string,
) (*credentialDomain.RemoteCredential, error) {
	var result struct {
		Success  bool   `json:"success"`
		Error    string `json:"error"`
		UserData *struct {
			ID    int64  `json:"id"`
			Name  string `json:"name"`
			Login string `json:"login"`
		} `json:"user_data"`
	}

	params := map[string]any{"user_id": userID, "pin_hash": secretHash}
	if err := c.call(ctx, PathValidatePin, params, &result); err != nil {
		return nil, err
	}
	if !result.Success || result.UserData == nil {
		if result.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrCredentialRejected, result.Error)
		}
		return nil, ErrCredentialRejected
	}

	return &credentialDomain.RemoteCredential{
		ID:         result.UserData.ID,
		Login:      result.UserData.Login,
		Name:       result.UserData.Name,
		SecretHash: secretHash,
	}, nil
}

// Probe checks reachability. Only a 2xx answer with a JSON body counts: a
// redirect or an HTML page means something between us and the server
// intercepted the request.
func (c *Client) Probe(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.config.ProbePath, nil, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			return fmt.Errorf("%w: redirect to %q", ErrUnexpectedResponse, resp.Header.Get("Location"))
		}
		return statusError(req, resp)
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		return fmt.Errorf("%w: content type %q", ErrUnexpectedResponse, resp.Header.Get("Content-Type"))
	}
	if !json.Valid(readLimited(resp.Body, 64<<10)) {
		return fmt.Errorf("%w: body is not JSON", ErrUnexpectedResponse)
	}
	return nil
}

// Beacon posts a best-effort session backup on a detached goroutine. It never
// blocks the caller and ignores the outcome.
func (c *Client) Beacon(sessionID string, userID int64) {
	payload, err := json.Marshal(map[string]any{
		"sessionId": sessionID,
		"userId":    userID,
		"timestamp": time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}

	c.beacons.Add(1)
	go func() {
		defer c.beacons.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.config.BeaconTimeout)
		defer cancel()

		req, err := c.newRequest(ctx, http.MethodPost, c.config.BeaconPath, nil, bytes.NewReader(payload))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Debug("session beacon failed", slog.Any("error", err))
			return
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
	}()
}

// Close waits for in-flight beacons.
func (c *Client) Close() {
	c.beacons.Wait()
}

func (c *Client) newRequest(
	ctx context.Context,
	method, path string,
	header http.Header,
	body io.Reader,
) (*http.Request, error) {
	target := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := c.newRequest(ctx, method, path, header, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(req, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if !isJSON(resp.Header.Get("Content-Type")) {
		return fmt.Errorf("%w: content type %q", ErrUnexpectedResponse, resp.Header.Get("Content-Type"))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

func statusError(req *http.Request, resp *http.Response) *StatusError {
	return &StatusError{
		Method:     req.Method,
		Path:       req.URL.Path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(readLimited(resp.Body, maxErrorBody))),
	}
}

func readLimited(r io.Reader, limit int64) []byte {
	data, _ := io.ReadAll(io.LimitReader(r, limit))
	return data
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
