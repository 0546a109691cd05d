// Package remote talks to the commerce platform's import REST endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BadgerOps/pimsync/internal/config"
	"github.com/BadgerOps/pimsync/internal/safety"
)

// maxResponseSize bounds how much of a response body is read (10MB).
const maxResponseSize = 10 * 1024 * 1024

// Client performs authenticated requests against one resolved endpoint.
type Client struct {
	endpoint   *config.Endpoint
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// NewClient creates a client whose requests are bounded by the endpoint timeout.
func NewClient(endpoint *config.Endpoint, logger *slog.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: safety.NewHTTPClient(endpoint.Timeout()),
		logger:     logger,
		userAgent:  "pimsync/1.0",
	}
}

// Endpoint returns the resolved endpoint settings.
func (c *Client) Endpoint() *config.Endpoint {
	return c.endpoint
}

// Enabled reports whether the endpoint kill switch allows remote calls.
func (c *Client) Enabled() bool {
	return c.endpoint.Enabled
}

// Post sends body as JSON to the named operation and returns the raw response body.
func (c *Client) Post(ctx context.Context, operation string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", operation, err)
	}
	return c.do(ctx, http.MethodPost, operation, bytes.NewReader(payload))
}

// Get calls the named operation and returns the raw response body.
func (c *Client) Get(ctx context.Context, operation string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, operation, nil)
}

// GetString calls the named operation and decodes its body as a string. The
// importer answers with either a JSON string or plain text.
func (c *Client) GetString(ctx context.Context, operation string) (string, error) {
	raw, err := c.Get(ctx, operation)
	if err != nil {
		return "", err
	}
	return DecodeString(raw), nil
}

func (c *Client) do(ctx context.Context, method, operation string, body io.Reader) ([]byte, error) {
	url := c.endpoint.URL(operation)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", c.endpoint.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("calling remote endpoint", "method", method, "endpoint", url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s cancelled: %w", method, operation, ctx.Err())
		}
		return nil, &TransportError{Method: method, URL: url, Cause: err}
	}
	defer resp.Body.Close()

	data, readErr := safety.ReadAllWithLimit(resp.Body, maxResponseSize)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       excerpt(data),
		}
	}
	if readErr != nil {
		return nil, &TransportError{Method: method, URL: url, StatusCode: resp.StatusCode, Status: resp.Status, Cause: readErr}
	}
	return data, nil
}

// DecodeString interprets a response body as a JSON string, falling back to
// the trimmed raw text.
func DecodeString(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

// DecodeBool reports whether the body is the JSON literal true. Anything
// else, including an empty body, counts as false.
func DecodeBool(raw []byte) bool {
	var b bool
	if err := json.Unmarshal(bytes.TrimSpace(raw), &b); err != nil {
		return false
	}
	return b
}

// TransportError represents a failed HTTP exchange: either the request never
// completed (Cause set) or the server answered with a non-2xx status.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       string
	Cause      error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s failed: %v", e.Method, e.URL, e.Cause)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: http %d: %v", e.Method, e.URL, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s %s: http error %d: %s", e.Method, e.URL, e.StatusCode, e.Status)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

func excerpt(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 512 {
		return s[:512] + "..."
	}
	return s
}
