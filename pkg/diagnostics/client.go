package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client reads a running relay's diagnostics endpoints.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the relay at addr (e.g.
// "http://127.0.0.1:8080") with endpoints under prefix. A bare host:port
// is treated as http.
func NewClient(addr, prefix string, hc *http.Client) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid relay address %q: %w", addr, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid relay address %q: missing host", addr)
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base: strings.TrimRight(u.String(), "/") + "/" + strings.Trim(prefix, "/"),
		http: hc,
	}, nil
}

// APIError is a non-2xx diagnostics response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("diagnostics request failed (%d): %s", e.Status, e.Message)
}

// Metrics fetches the registry totals and rates.
func (c *Client) Metrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	err := c.do(ctx, http.MethodGet, "/metrics", &m)
	return m, err
}

// Requests fetches every tracked request.
func (c *Client) Requests(ctx context.Context) ([]RequestInfo, error) {
	var resp struct {
		Requests []RequestInfo `json:"requests"`
	}
	err := c.do(ctx, http.MethodGet, "/requests", &resp)
	return resp.Requests, err
}

// Request fetches one request.
func (c *Client) Request(ctx context.Context, id string) (RequestInfo, error) {
	var info RequestInfo
	err := c.do(ctx, http.MethodGet, "/requests/"+url.PathEscape(id), &info)
	return info, err
}

// Hanging fetches the requests currently flagged as hanging.
func (c *Client) Hanging(ctx context.Context) ([]HangingRequest, error) {
	var resp struct {
		Hanging []HangingRequest `json:"hanging"`
	}
	err := c.do(ctx, http.MethodGet, "/hanging", &resp)
	return resp.Hanging, err
}

// Leaks fetches orphaned resources.
func (c *Client) Leaks(ctx context.Context) ([]Leak, error) {
	var resp struct {
		Leaks []Leak `json:"leaks"`
	}
	err := c.do(ctx, http.MethodGet, "/leaks", &resp)
	return resp.Leaks, err
}

// Sweep runs a sweep now.
func (c *Client) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	err := c.do(ctx, http.MethodPost, "/sweep", &res)
	return res, err
}

// Cleanup evicts one request from the registry.
func (c *Client) Cleanup(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/requests/"+url.PathEscape(id)+"/cleanup", nil)
}

// CleanupAll terminates every live request and returns how many there were.
func (c *Client) CleanupAll(ctx context.Context) (int, error) {
	var resp struct {
		Terminated int `json:"terminated"`
	}
	err := c.do(ctx, http.MethodPost, "/cleanup", &resp)
	return resp.Terminated, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("diagnostics request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("failed to read diagnostics response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode diagnostics response: %w", err)
	}
	return nil
}
