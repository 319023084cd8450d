// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/delve/internal/util"
)

// Configuration constants for the research backend.
const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout is the default timeout for single-shot requests.
	DefaultTimeout = 120 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// maxErrorMessageRunes caps the backend message carried by an APIError.
	maxErrorMessageRunes = 512

	chatPath   = "/chat"
	streamPath = "/research/stream"
	userAgent  = "delve/0.1.0"
)

var (
	// sharedTransport pools connections for every backend client.
	sharedTransport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	// sharedStreamingClient is used for event streams (no timeout, context-controlled).
	sharedStreamingClient = &http.Client{
		Transport: sharedTransport,
	}
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrMalformedResponse indicates a reply the client could not interpret.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrMissingReply indicates a single-shot response without a reply field.
	ErrMissingReply = fmt.Errorf("%w: no reply field", ErrMalformedResponse)

	// ErrUnauthorized indicates the backend rejected the API key.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
}

// Is maps well-known statuses onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// TransportError is a failure to reach the backend or to read its response.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// HistoryEntry is one prior message sent as conversation context.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a single-shot request.
type ChatRequest struct {
	Query     string         `json:"query"`
	Raw       bool           `json:"raw"`
	History   []HistoryEntry `json:"history"`
	SessionID string         `json:"sessionId,omitempty"`
}

// chatResponse is the body of a single-shot response. Reply is a pointer so
// an absent field can be told apart from an empty reply.
type chatResponse struct {
	Reply *string `json:"reply"`
}

// apiErrorResponse is the error body the backend returns on failure.
type apiErrorResponse struct {
	Error   string `json:"error"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string

	// Timeout bounds single-shot requests. Streams are bounded by context.
	Timeout time.Duration

	// RequestsPerSecond paces outgoing requests; zero disables pacing.
	RequestsPerSecond float64
	Burst             int
}

// Client talks to the research backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// New creates a backend client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if burst <= 0 {
			burst = 1
		}
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Transport: sharedTransport,
			Timeout:   timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Named("backend"),
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat performs a single-shot request and returns the reply text.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if req.History == nil {
		req.History = []HistoryEntry{}
	}
	httpReq, err := c.newRequest(ctx, chatPath, req)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransportError{Op: "chat request", Err: err}
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if errors.Is(err, ErrMalformedResponse) {
		return "", err
	}
	if err != nil {
		return "", &TransportError{Op: "read chat response", Err: err}
	}
	c.logger.Debug("chat response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return "", handleErrorResponse(resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if parsed.Reply == nil {
		return "", ErrMissingReply
	}
	return *parsed.Reply, nil
}

// OpenStream starts a research request and returns the event-stream body.
// The caller owns the body and must close it; canceling ctx also ends the
// stream.
func (c *Client) OpenStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	if req.History == nil {
		req.History = []HistoryEntry{}
	}
	httpReq, err := c.newRequest(ctx, streamPath, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := sharedStreamingClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "open stream", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := readResponse(resp)
		return nil, handleErrorResponse(resp.StatusCode, body)
	}

	c.logger.Debug("stream opened", zap.String("path", streamPath))
	return resp.Body, nil
}

// newRequest waits for the rate limiter and builds a JSON POST request.
func (c *Client) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Op: "rate limit wait", Err: err}
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	return req, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// =============================================================================
// RESPONSE HANDLING
// =============================================================================

// readResponse reads the response body with size limits to prevent memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	// One byte past the limit tells a full-size body from an oversized one.
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedResponse, MaxResponseSize)
	}

	return body, nil
}

// handleErrorResponse converts HTTP error responses to an *APIError.
func handleErrorResponse(statusCode int, body []byte) error {
	msg := strings.TrimSpace(string(body))

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil {
		for _, m := range []string{apiErr.Error, apiErr.Detail, apiErr.Message} {
			if m != "" {
				msg = m
				break
			}
		}
	}
	msg = util.TruncateRunes(msg, maxErrorMessageRunes)
	return &APIError{Status: statusCode, Message: msg}
}
