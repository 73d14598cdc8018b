package providers

import (
	"context"
	"time"
)

// DefaultHealthCheckInterval is used when the configuration sets none.
const DefaultHealthCheckInterval = 30 * time.Second

// HealthProbe performs one health check.
type HealthProbe func(ctx context.Context) error

// StartHealthChecker runs probe periodically until ctx is cancelled or the
// provider is closed. While the provider is unhealthy the interval backs
// off exponentially.
func (p *HTTPProvider) StartHealthChecker(ctx context.Context, probe HealthProbe) {
	if !p.healthCheckStarted.CompareAndSwap(false, true) {
		return
	}
	go p.runHealthChecker(ctx, probe)
}

func (p *HTTPProvider) runHealthChecker(ctx context.Context, probe HealthProbe) {
	defer close(p.healthCheckStopped)

	interval := p.config.HealthCheckInterval
	if interval == 0 {
		interval = DefaultHealthCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("health checker started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopHealthCheck:
			return
		case <-ticker.C:
			p.performHealthCheck(ctx, probe)

			next := interval
			if h := p.Health(); !h.IsHealthy {
				next = calculateBackoff(h.ConsecutiveFailures, interval)
				p.logger.Debug("health check backoff",
					"consecutive_failures", h.ConsecutiveFailures,
					"next_check_in", next,
				)
			}
			ticker.Reset(next)
		}
	}
}

func (p *HTTPProvider) performHealthCheck(ctx context.Context, probe HealthProbe) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := probe(checkCtx)
	latency := time.Since(start)

	if err != nil {
		p.updateHealth(false, err)
		p.logger.Error("health check failed", "error", err, "latency", latency)
		return
	}
	p.updateHealth(true, nil)
	p.logger.Debug("health check passed", "latency", latency)
}

// Probe issues a GET against url with headers. Any 2xx is healthy. It does
// not retry.
func (p *HTTPProvider) Probe(ctx context.Context, url string, headers map[string]string) error {
	resp, err := p.do(ctx, "GET", url, nil, headers, 0)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// calculateBackoff doubles base per failure, capped at ten times base and
// at five minutes.
func calculateBackoff(consecutiveFailures int, base time.Duration) time.Duration {
	if consecutiveFailures <= 0 {
		return base
	}
	multiplier := 10
	if consecutiveFailures < 4 {
		multiplier = 1 << consecutiveFailures
	}
	backoff := base * time.Duration(multiplier)
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	return backoff
}
