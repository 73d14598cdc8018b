package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mercator-hq/relay/pkg/providerfactory"
	"mercator-hq/relay/pkg/providers"
)

type staticHealth providerfactory.HealthSummary

func (s staticHealth) HealthSummary() providerfactory.HealthSummary {
	return providerfactory.HealthSummary(s)
}

func TestProviderHealthHandler(t *testing.T) {
	checked := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		summary    providerfactory.HealthSummary
		wantStatus int
		wantBody   string
		wantNames  []string
	}{
		{
			name: "some healthy",
			summary: providerfactory.HealthSummary{
				Total: 2, Healthy: 1, Unhealthy: 1,
				Details: map[string]providers.ProviderHealth{
					"openai":    {IsHealthy: false, LastCheck: checked, LastError: errors.New("dial tcp: refused"), ConsecutiveFailures: 3},
					"anthropic": {IsHealthy: true, LastCheck: checked, TotalRequests: 10},
				},
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantNames:  []string{"anthropic", "openai"},
		},
		{
			name: "none healthy",
			summary: providerfactory.HealthSummary{
				Total: 1, Unhealthy: 1,
				Details: map[string]providers.ProviderHealth{"openai": {LastCheck: checked}},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unavailable",
			wantNames:  []string{"openai"},
		},
		{
			name:       "no providers",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewProviderHealthHandler(staticHealth(tt.summary)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/providers", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp providerHealthResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantBody {
				t.Errorf("status field = %q, want %q", resp.Status, tt.wantBody)
			}
			if len(resp.Providers) != len(tt.wantNames) {
				t.Fatalf("providers = %+v, want %v", resp.Providers, tt.wantNames)
			}
			for i, name := range tt.wantNames {
				if resp.Providers[i].Name != name {
					t.Errorf("providers[%d] = %q, want %q", i, resp.Providers[i].Name, name)
				}
			}
		})
	}
}

func TestProviderHealthHandler_ReportsLastError(t *testing.T) {
	summary := providerfactory.HealthSummary{
		Total: 1, Healthy: 0,
		Details: map[string]providers.ProviderHealth{
			"openai": {LastError: errors.New("upstream 500"), ConsecutiveFailures: 2},
		},
	}
	w := httptest.NewRecorder()
	NewProviderHealthHandler(staticHealth(summary)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp providerHealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p := resp.Providers[0]; p.LastError != "upstream 500" || p.ConsecutiveFailures != 2 {
		t.Errorf("provider = %+v", p)
	}
}
