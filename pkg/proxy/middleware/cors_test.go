package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/relay/pkg/config"
)

func TestCORSMiddleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name        string
		cfg         config.CORSConfig
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantOrigin  string
		wantCreds   string
		wantMethods string
		wantMaxAge  string
	}{
		{
			name: "listed origin echoed with credentials",
			cfg: config.CORSConfig{
				Enabled:          true,
				AllowedOrigins:   []string{"https://example.com"},
				AllowCredentials: true,
			},
			method:     http.MethodPost,
			origin:     "https://example.com",
			wantStatus: http.StatusOK,
			wantOrigin: "https://example.com",
			wantCreds:  "true",
		},
		{
			name:       "wildcard allows any origin",
			cfg:        config.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
			method:     http.MethodGet,
			origin:     "https://any.example",
			wantStatus: http.StatusOK,
			wantOrigin: "*",
		},
		{
			name:       "unlisted origin gets no header",
			cfg:        config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://example.com"}},
			method:     http.MethodGet,
			origin:     "https://evil.example",
			wantStatus: http.StatusOK,
		},
		{
			name: "preflight answered with 204",
			cfg: config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST"},
				AllowedHeaders: []string{"Authorization"},
				MaxAge:         600,
			},
			method:      http.MethodOptions,
			origin:      "https://example.com",
			preflight:   true,
			wantStatus:  http.StatusNoContent,
			wantOrigin:  "*",
			wantMethods: "GET, POST",
			wantMaxAge:  "600",
		},
		{
			name:       "plain OPTIONS passes through",
			cfg:        config.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
			method:     http.MethodOptions,
			wantStatus: http.StatusOK,
			wantOrigin: "*",
		},
		{
			name:       "disabled",
			cfg:        config.CORSConfig{AllowedOrigins: []string{"*"}},
			method:     http.MethodGet,
			origin:     "https://example.com",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/chat/completions", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()

			CORSMiddleware(tt.cfg)(okHandler).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			h := w.Header()
			if got := h.Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := h.Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("Allow-Credentials = %q, want %q", got, tt.wantCreds)
			}
			if got := h.Get("Access-Control-Allow-Methods"); got != tt.wantMethods {
				t.Errorf("Allow-Methods = %q, want %q", got, tt.wantMethods)
			}
			if got := h.Get("Access-Control-Max-Age"); got != tt.wantMaxAge {
				t.Errorf("Max-Age = %q, want %q", got, tt.wantMaxAge)
			}
		})
	}
}
