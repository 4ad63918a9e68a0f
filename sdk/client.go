// Package mailq provides a Go client for the mailqueue HTTP API.
//
// Usage:
//
//	client := mailq.New("http://localhost:8080", "your-api-key")
//
//	// Queue an email for the delivery worker
//	queued, err := client.Enqueue(ctx, mailq.SendRequest{To: "user@example.com"})
//
//	// Inspect recent activity
//	entries, err := client.History(ctx, 10)
package mailq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Client is the authenticated mailqueue API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client. baseURL is the server root (e.g.
// "http://localhost:8080"); apiKey is the server's API_KEY.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Health checks that the server is reachable and healthy.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	return doRequest[HealthResponse](ctx, c, http.MethodGet, "/health", nil, nil, http.StatusOK)
}

// Enqueue stores an email for asynchronous delivery.
func (c *Client) Enqueue(ctx context.Context, req SendRequest) (*EnqueueResponse, error) {
	return doRequest[EnqueueResponse](ctx, c, http.MethodPost, "/emails", nil, req, http.StatusAccepted)
}

// SendDirect sends an email immediately through the server's provider.
func (c *Client) SendDirect(ctx context.Context, req SendRequest) (*DirectResponse, error) {
	return doRequest[DirectResponse](ctx, c, http.MethodPost, "/emails/direct", nil, req, http.StatusOK)
}

// History returns up to limit activity log entries, newest first.
// A limit of 0 uses the server default.
func (c *Client) History(ctx context.Context, limit int) ([]LogEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	out, err := doRequest[historyResponse](ctx, c, http.MethodGet, "/emails/history", q, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Queue returns stored delivery records. An empty state matches all states.
func (c *Client) Queue(ctx context.Context, state string, limit int) ([]Task, error) {
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	out, err := doRequest[queueResponse](ctx, c, http.MethodGet, "/emails/queue", q, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// --- internal helpers ---

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("mailq: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

func doRequest[T any](ctx context.Context, c *Client, method, path string, query url.Values, body any, expectedStatus int) (*T, error) {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != expectedStatus {
		return nil, parseError(resp)
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("mailq: decode response: %w", err)
	}
	return &out, nil
}

func parseError(resp *http.Response) *APIError {
	e := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		e.Message = body.Error
	} else {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}
