// Package inference holds the outbound client for the generative-AI
// endpoint and the payload mapping from the proxy's message shape to the
// endpoint's request shape.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// ErrNotConfigured is returned when the endpoint or API key was absent from
// configuration. The process still starts in that state; calls fail here.
var ErrNotConfigured = errors.New("inference endpoint not configured")

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Payload is the request shape the external inference API expects. This
// indirection exists so the external shape can change without touching
// validation or redaction.
type Payload struct {
	Model      string     `json:"model"`
	Input      Input      `json:"input"`
	Parameters Parameters `json:"parameters"`
}

// Input wraps the message sequence.
type Input struct {
	Messages []Message `json:"messages"`
}

// Parameters carries sampling options.
type Parameters struct {
	Temperature float64 `json:"temperature"`
}

// BuildPayload maps sanitized messages and options into the external
// request shape. Purely structural, no validation.
func BuildPayload(messages []Message, model string, temperature float64) Payload {
	return Payload{
		Model:      model,
		Input:      Input{Messages: messages},
		Parameters: Parameters{Temperature: temperature},
	}
}

// Result is the normalized upstream outcome. Status collapses every 2xx to
// exactly 200; other statuses pass through unchanged. Body is the decoded
// upstream JSON, or map{"raw": text} when the body did not parse.
type Result struct {
	Status int
	Body   any
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds each outbound call.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header sent upstream.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client performs single, non-retried calls to the inference endpoint with
// the configured key injected as a bearer credential.
type Client struct {
	endpoint   string
	apiKey     string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a client for the given endpoint and key. An empty
// endpoint or key is tolerated; Infer returns ErrNotConfigured at call time.
func NewClient(endpoint, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		timeout:    defaultTimeout,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Infer POSTs the payload and returns the normalized result. The body is
// always read as text first; a body that fails to parse as JSON is wrapped
// as {"raw": text} instead of surfacing a parse error. Transport failures
// are returned as errors for the caller to map to its internal-error shape.
func (c *Client) Infer(ctx context.Context, payload Payload) (*Result, error) {
	if c.endpoint == "" || c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		decoded = map[string]any{"raw": string(respBody)}
	}

	return &Result{
		Status: normalizeStatus(resp.StatusCode),
		Body:   decoded,
	}, nil
}

// normalizeStatus collapses all 2xx codes to 200. Callers only need to
// distinguish "succeeded" from "did not succeed", not which 2xx variant
// the upstream chose.
func normalizeStatus(status int) int {
	if status >= 200 && status < 300 {
		return http.StatusOK
	}
	return status
}
