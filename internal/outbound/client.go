// Package outbound is the outbound HTTP task dispatcher: the
// commit-coupled queue that ships subscription-handler and notification
// dispatches to their destinations with bounded retry, via a
// task.Dispatch-shaped client plus an in-memory Queue.
package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rathix/workflow-engine/internal/task"
)

// Client performs one HTTP delivery attempt of a task.Dispatch against a
// fixed base URL.
type Client struct {
	baseURL      string
	apiKey       string
	apiKeyHeader string
	httpClient   *http.Client
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the client's http.Client (for tests, or custom
// transports/timeouts).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithAPIKeyHeader overrides the header name the API key is sent under.
// Defaults to "X-Engine-Api-Key".
func WithAPIKeyHeader(header string) Option {
	return func(cl *Client) { cl.apiKeyHeader = header }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// New creates a Client posting to baseURL, authenticating with apiKey.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		apiKeyHeader: "X-Engine-Api-Key",
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send performs one synchronous HTTP delivery attempt of d and returns a
// {status, response, response_headers, data, url, path} result. Transport
// errors are returned to the caller; retry policy lives in Queue, not here.
func (c *Client) Send(ctx context.Context, d task.Dispatch) (task.Result, error) {
	method := d.Method
	if method == "" {
		method = http.MethodPost
	}

	var bodyReader io.Reader
	if d.Body != nil {
		payload, err := json.Marshal(d.Body)
		if err != nil {
			return task.Result{}, fmt.Errorf("outbound: marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	url := c.baseURL + "/" + strings.TrimLeft(d.Path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return task.Result{}, fmt.Errorf("outbound: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return task.Result{}, fmt.Errorf("outbound: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return task.Result{}, fmt.Errorf("outbound: read response: %w", err)
	}

	var data any
	if len(raw) > 0 {
		if jsonErr := json.Unmarshal(raw, &data); jsonErr != nil {
			data = string(raw)
		}
	}

	return task.Result{
		Status:          resp.StatusCode,
		Response:        string(raw),
		ResponseHeaders: resp.Header,
		Data:            data,
		URL:             url,
		Path:            d.Path,
	}, nil
}
