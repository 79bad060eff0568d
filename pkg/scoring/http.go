package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TokenSource supplies a bearer token for the scoring service. It is called
// on first use and again whenever the service answers 401.
type TokenSource func(ctx context.Context) (string, error)

// HTTPEndpointConfig holds configuration for an HTTP scoring endpoint
type HTTPEndpointConfig struct {
	// URL is the scoring operation endpoint; each row is POSTed to it as JSON
	URL string

	// TokenSource is optional; when nil, requests are sent unauthenticated
	TokenSource TokenSource

	// Timeout bounds a single scoring request. Defaults to 30s.
	Timeout time.Duration
}

// HTTPEndpoint scores rows by POSTing them to a REST operation.
// Token refresh is single-flighted: when many workers hit an expired token
// at once, exactly one refresh call is made and the rest wait for its
// result, mirroring the dedup discipline of the surrounding auth layer.
type HTTPEndpoint struct {
	config HTTPEndpointConfig
	client *http.Client
	logger *zap.Logger

	mu      sync.RWMutex
	token   string
	refresh singleflight.Group
}

// NewHTTPEndpoint creates an HTTP scoring endpoint.
// If logger is nil a production logger is used.
func NewHTTPEndpoint(config HTTPEndpointConfig, logger *zap.Logger) (*HTTPEndpoint, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("scoring URL cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &HTTPEndpoint{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

// Score POSTs the row to the scoring operation and normalizes the response.
// A 401 triggers one token refresh and a single retry; any other failure is
// returned as-is for the executor to capture.
func (e *HTTPEndpoint) Score(ctx context.Context, row Row) (Output, error) {
	body, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to encode row: %w", err)
	}

	output, status, err := e.post(ctx, body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized && e.config.TokenSource != nil {
		if err := e.refreshToken(ctx); err != nil {
			return nil, err
		}
		output, status, err = e.post(ctx, body)
		if err != nil {
			return nil, err
		}
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("scoring request failed with status %d", status)
	}
	return output, nil
}

// post performs one request attempt and decodes the payload on success.
// Transport-level failures are returned as errors; HTTP-level failures are
// reported through the status code so the caller can decide on a retry.
func (e *HTTPEndpoint) post(ctx context.Context, body []byte) (Output, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if e.config.TokenSource != nil {
		token, err := e.currentToken(ctx)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("scoring request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	var payload interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("malformed scoring response: %w", err)
	}
	return normalizeOutput(payload), resp.StatusCode, nil
}

// currentToken returns the cached token, fetching one if none is held yet
func (e *HTTPEndpoint) currentToken(ctx context.Context) (string, error) {
	e.mu.RLock()
	token := e.token
	e.mu.RUnlock()
	if token != "" {
		return token, nil
	}
	if err := e.refreshToken(ctx); err != nil {
		return "", err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token, nil
}

// refreshToken fetches a new bearer token exactly once per expiry, no matter
// how many workers observe the stale token concurrently.
func (e *HTTPEndpoint) refreshToken(ctx context.Context) error {
	_, err, shared := e.refresh.Do("token", func() (interface{}, error) {
		token, err := e.config.TokenSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sdkerrors.ErrTokenRefreshFailed, err)
		}
		e.mu.Lock()
		e.token = token
		e.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return err
	}
	e.logger.Debug("Bearer token refreshed", zap.Bool("sharedRefresh", shared))
	return nil
}

// normalizeOutput shapes an arbitrary JSON response into an Output mapping.
// Object responses are used directly; anything else is wrapped under a
// single "value" key so the exporter always sees named fields.
func normalizeOutput(payload interface{}) Output {
	if m, ok := payload.(map[string]interface{}); ok {
		return m
	}
	return Output{"value": payload}
}
