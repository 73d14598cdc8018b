package handlers

import (
	"net/http"
	"sort"
	"time"

	"mercator-hq/relay/pkg/proxy"
)

// ProviderHealthHandler serves GET /health/providers with per-provider
// health. Liveness and readiness are served by pkg/telemetry/health.
type ProviderHealthHandler struct {
	Providers HealthReporter
}

// NewProviderHealthHandler creates a provider health handler.
func NewProviderHealthHandler(hr HealthReporter) *ProviderHealthHandler {
	return &ProviderHealthHandler{Providers: hr}
}

type providerHealth struct {
	Name                string `json:"name"`
	Healthy             bool   `json:"healthy"`
	LastCheck           int64  `json:"last_check"`
	LastError           string `json:"last_error,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	TotalRequests       int64  `json:"total_requests"`
	FailedRequests      int64  `json:"failed_requests"`
}

type providerHealthResponse struct {
	Status    string           `json:"status"`
	Total     int              `json:"total"`
	Healthy   int              `json:"healthy"`
	Providers []providerHealth `json:"providers"`
	Timestamp int64            `json:"timestamp"`
}

// ServeHTTP implements http.Handler. It answers 503 when no provider is
// healthy.
func (h *ProviderHealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	summary := h.Providers.HealthSummary()

	resp := providerHealthResponse{
		Status:    "ok",
		Total:     summary.Total,
		Healthy:   summary.Healthy,
		Providers: make([]providerHealth, 0, len(summary.Details)),
		Timestamp: time.Now().Unix(),
	}
	for name, health := range summary.Details {
		ph := providerHealth{
			Name:                name,
			Healthy:             health.IsHealthy,
			LastCheck:           health.LastCheck.Unix(),
			ConsecutiveFailures: health.ConsecutiveFailures,
			TotalRequests:       health.TotalRequests,
			FailedRequests:      health.FailedRequests,
		}
		if health.LastError != nil {
			ph.LastError = health.LastError.Error()
		}
		resp.Providers = append(resp.Providers, ph)
	}
	sort.Slice(resp.Providers, func(i, j int) bool {
		return resp.Providers[i].Name < resp.Providers[j].Name
	})

	status := http.StatusOK
	if summary.Healthy == 0 {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	_ = proxy.WriteJSONResponse(w, status, resp)
}
