package server

import (
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/diagnostics"
	"mercator-hq/relay/pkg/lifecycle"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/proxy/handlers"
	"mercator-hq/relay/pkg/proxy/middleware"
	"mercator-hq/relay/pkg/security/auth"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// Route paths.
const (
	ChatCompletionsPath   = "/v1/chat/completions"
	ChatCompletionsWSPath = "/v1/chat/completions/ws"
	ProviderHealthPath    = "/health/providers"
)

// routes builds the mux and wraps it in the middleware chain. Only the
// /v1 routes are authenticated and rate limited.
func (s *Server) routes(logger *slog.Logger) http.Handler {
	cfg := s.Config()
	mux := http.NewServeMux()

	ingress := &lifecycle.Ingress{
		Clock:    s.registry.Clock(),
		Reporter: s.registry,
		Timeouts: s.timeouts.Load,
		Classify: providers.Classify,
		Logger:   logger,
	}

	chat := handlers.NewChatHandler(s.manager, ingress)
	chat.Tracer = s.tracer
	chat.MaxBodyBytes = cfg.Proxy.MaxBodyBytes
	chat.Logger = logger.With("component", "proxy")
	if s.collector != nil {
		chat.Metrics = s.collector
	}

	ws := handlers.NewWebSocketHandler(chat)
	ws.OriginPatterns = originPatterns(cfg.Proxy.CORS)

	mux.Handle("POST "+ChatCompletionsPath, s.protect(chat, logger))
	mux.Handle("GET "+ChatCompletionsWSPath, s.protect(ws, logger))
	mux.Handle("GET "+ProviderHealthPath, handlers.NewProviderHealthHandler(s.manager))

	s.health.Register(mux, cfg.Telemetry.Health.LivenessPath, cfg.Telemetry.Health.ReadinessPath, s.version)

	if cfg.Telemetry.Metrics.Enabled && s.collector != nil {
		mux.Handle("GET "+cfg.Telemetry.Metrics.Path, s.collector.Handler())
	}
	if cfg.Diagnostics.Enabled {
		diagnostics.NewHandler(s.registry, s.sweeper).Register(mux, cfg.Diagnostics.PathPrefix)
	}

	var h http.Handler = mux
	h = tracing.HTTPMiddleware(h)
	h = middleware.CORSMiddleware(cfg.Proxy.CORS)(h)
	h = middleware.SecurityHeadersMiddleware(h)
	h = middleware.LoggingMiddleware(logger)(h)
	h = middleware.RequestIDMiddleware(h)
	h = middleware.RecoveryMiddleware(logger)(h)
	return h
}

// protect applies authentication and rate limiting. Authentication runs
// first so unauthenticated traffic never consumes a key's quota.
func (s *Server) protect(h http.Handler, logger *slog.Logger) http.Handler {
	cfg := s.Config()
	if s.limiter != nil {
		h = middleware.RateLimitMiddleware(s.limiter, cfg.Limits.RateLimit.KeyBy, logger)(h)
	}
	if cfg.Security.Authentication.Enabled {
		h = auth.Middleware(s.keys, cfg.Security.Authentication.Header, logger)(h)
	}
	return h
}

// originPatterns converts CORS origins to the host patterns the WebSocket
// origin check expects. Same-origin upgrades are always allowed.
func originPatterns(cors config.CORSConfig) []string {
	if !cors.Enabled {
		return nil
	}
	var patterns []string
	for _, origin := range cors.AllowedOrigins {
		if origin == "*" {
			return []string{"*"}
		}
		if _, host, ok := strings.Cut(origin, "://"); ok {
			origin = host
		}
		patterns = append(patterns, origin)
	}
	return patterns
}
