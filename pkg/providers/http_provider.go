package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 64 << 10

// HTTPProvider is the base for HTTP adapters. It owns a pooled client,
// retries transient failures and tracks health. Adapters embed it.
type HTTPProvider struct {
	config ProviderConfig
	client *http.Client
	logger *slog.Logger

	healthMu sync.RWMutex
	health   ProviderHealth

	closeOnce          sync.Once
	stopHealthCheck    chan struct{}
	healthCheckStopped chan struct{}
	healthCheckStarted atomic.Bool
}

// NewHTTPProvider creates the base provider with a pooled transport.
func NewHTTPProvider(config ProviderConfig) *HTTPProvider {
	if config.RetryBackoff == 0 {
		config.RetryBackoff = time.Second
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		ResponseHeaderTimeout: config.Timeout,
		ForceAttemptHTTP2:     true,
	}
	if config.WrapTransport != nil {
		transport = config.WrapTransport(transport)
	}

	now := time.Now()
	return &HTTPProvider{
		config: config,
		// No client timeout: it would cut off long streams. Upstream
		// header waits are bounded by the transport, bodies by the caller's
		// context.
		client: &http.Client{Transport: transport},
		logger: slog.Default().With("component", "providers", "provider", config.Name),
		health: ProviderHealth{
			IsHealthy:             true,
			LastCheck:             now,
			LastSuccessfulRequest: now,
		},
		stopHealthCheck:    make(chan struct{}),
		healthCheckStopped: make(chan struct{}),
	}
}

// Name returns the configured provider name.
func (p *HTTPProvider) Name() string {
	return p.config.Name
}

// Type returns the adapter type.
func (p *HTTPProvider) Type() string {
	return p.config.Type
}

// Config returns the provider configuration.
func (p *HTTPProvider) Config() ProviderConfig {
	return p.config
}

// IsHealthy reports the last known health.
func (p *HTTPProvider) IsHealthy() bool {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	return p.health.IsHealthy
}

// Health returns detailed health information.
func (p *HTTPProvider) Health() ProviderHealth {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	return p.health
}

// updateHealth records a success or failure. Three consecutive failures
// mark the provider unhealthy; one success restores it.
func (p *HTTPProvider) updateHealth(success bool, err error) {
	p.healthMu.Lock()
	was := p.health.IsHealthy
	p.health.LastCheck = time.Now()
	if success {
		p.health.IsHealthy = true
		p.health.ConsecutiveFailures = 0
		p.health.LastError = nil
		p.health.LastSuccessfulRequest = p.health.LastCheck
	} else {
		p.health.ConsecutiveFailures++
		p.health.LastError = err
		if p.health.ConsecutiveFailures >= 3 {
			p.health.IsHealthy = false
		}
	}
	healthy := p.health.IsHealthy
	failures := p.health.ConsecutiveFailures
	p.healthMu.Unlock()

	if was != healthy {
		if healthy {
			p.logger.Info("provider marked healthy")
		} else {
			p.logger.Warn("provider marked unhealthy", "consecutive_failures", failures, "error", err)
		}
		if p.config.Observer != nil {
			p.config.Observer.UpdateProviderHealth(p.config.Name, healthy)
		}
	}
}

func (p *HTTPProvider) recordRequest(success bool) {
	p.healthMu.Lock()
	defer p.healthMu.Unlock()
	p.health.TotalRequests++
	if !success {
		p.health.FailedRequests++
	}
}

// Observe reports the outcome of one completion call for model.
func (p *HTTPProvider) Observe(model string, start time.Time, err error) {
	if p.config.Observer == nil {
		return
	}
	if err != nil {
		p.config.Observer.RecordProviderError(p.config.Name, ErrorType(err))
		return
	}
	p.config.Observer.RecordProviderLatency(p.config.Name, model, time.Since(start).Seconds())
}

// DoRequest sends a request, retrying network failures and 5xx responses
// with exponential backoff. 4xx responses are returned as typed errors
// without retry. A cancelled ctx ends the call immediately with a
// TimeoutError wrapping the context error.
func (p *HTTPProvider) DoRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	resp, err := p.do(ctx, method, url, body, headers, p.config.MaxRetries)
	switch {
	case err == nil:
		p.updateHealth(true, nil)
	case countsAgainstHealth(err):
		p.updateHealth(false, err)
	}
	return resp, err
}

// countsAgainstHealth reports whether err says the upstream itself is
// failing, rather than rejecting one request.
func countsAgainstHealth(err error) bool {
	var authErr *AuthError
	var provErr *ProviderError
	switch {
	case errors.As(err, &authErr):
		return true
	case errors.As(err, &provErr):
		return provErr.StatusCode == 0 || provErr.StatusCode >= 500
	}
	return false
}

func (p *HTTPProvider) do(ctx context.Context, method, url string, body []byte, headers map[string]string, maxRetries int) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.config.RetryBackoff << (attempt - 1)
			p.logger.Debug("retrying request",
				"attempt", attempt,
				"max_retries", maxRetries,
				"backoff", backoff,
			)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, &TimeoutError{Provider: p.config.Name, Cause: ctx.Err()}
			case <-timer.C:
			}
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}
		if req.Header.Get("Content-Type") == "" && body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.client.Do(req)
		if err != nil {
			p.recordRequest(false)
			if ctx.Err() != nil {
				return nil, &TimeoutError{Provider: p.config.Name, Cause: ctx.Err()}
			}
			lastErr = &ProviderError{Provider: p.config.Name, Message: "request failed", Cause: err}
			p.logger.Warn("request failed, will retry", "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			p.recordRequest(true)
			return resp, nil
		}

		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		p.recordRequest(false)

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, &AuthError{Provider: p.config.Name, StatusCode: resp.StatusCode, Message: string(errorBody)}

		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &RateLimitError{
				Provider:   p.config.Name,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				Message:    string(errorBody),
			}

		case resp.StatusCode < 500:
			return nil, &ProviderError{
				Provider:   p.config.Name,
				StatusCode: resp.StatusCode,
				Message:    string(errorBody),
			}
		}

		lastErr = &ProviderError{
			Provider:   p.config.Name,
			StatusCode: resp.StatusCode,
			Message:    string(errorBody),
		}
		p.logger.Warn("request returned error status, will retry",
			"status", resp.StatusCode,
			"attempt", attempt+1,
		)
	}

	return nil, lastErr
}

// DoJSONRequest sends reqBody as JSON and decodes the response into respBody.
func (p *HTTPProvider) DoJSONRequest(ctx context.Context, method, url string, reqBody, respBody any, headers map[string]string) error {
	var body []byte
	if reqBody != nil {
		var err error
		if body, err = json.Marshal(reqBody); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	resp, err := p.DoRequest(ctx, method, url, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return &TimeoutError{Provider: p.config.Name, Cause: ctx.Err()}
		}
		return &ParseError{Provider: p.config.Name, Cause: fmt.Errorf("failed to read response: %w", err)}
	}

	if respBody != nil && len(data) > 0 {
		if err := json.Unmarshal(data, respBody); err != nil {
			return &ParseError{
				Provider:    p.config.Name,
				RawResponse: string(data),
				Cause:       fmt.Errorf("failed to unmarshal response: %w", err),
			}
		}
	}
	return nil
}

// Close stops the health checker and closes idle connections.
func (p *HTTPProvider) Close() error {
	p.closeOnce.Do(func() {
		close(p.stopHealthCheck)
		if p.healthCheckStarted.Load() {
			select {
			case <-p.healthCheckStopped:
			case <-time.After(5 * time.Second):
				p.logger.Warn("health checker did not stop in time")
			}
		}
		p.client.CloseIdleConnections()
		p.logger.Info("provider closed")
	})
	return nil
}

// parseRetryAfter parses delay-seconds or an HTTP date.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
