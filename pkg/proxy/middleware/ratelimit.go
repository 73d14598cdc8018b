package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"mercator-hq/relay/pkg/faults"
	"mercator-hq/relay/pkg/limits/ratelimit"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/telemetry/logging"
)

// Rate limit response headers.
const (
	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"
)

// Key selectors for RateLimitMiddleware.
const (
	KeyByAPIKey = "api_key"
	KeyByIP     = "ip"
)

// RateLimitMiddleware rejects requests over the per-key window with a 429
// carrying Retry-After, and requests over the concurrency limit with a 429
// as well. Allowed responses carry X-RateLimit-* headers.
//
// keyBy selects the identity: the bearer API key, falling back to the
// remote IP when none is sent, or always the remote IP.
func RateLimitMiddleware(limiter *ratelimit.Limiter, keyBy string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ratelimit")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r, keyBy)
			requestID := GetRequestID(r.Context())

			res := limiter.Allow(key)
			if res.Limit > 0 {
				h := w.Header()
				h.Set(RateLimitLimitHeader, strconv.FormatInt(res.Limit, 10))
				h.Set(RateLimitRemainingHeader, strconv.FormatInt(res.Remaining, 10))
				h.Set(RateLimitResetHeader, strconv.FormatInt(res.Reset.Unix(), 10))
			}
			if !res.Allowed {
				logger.WarnContext(r.Context(), "rate limit exceeded",
					"key", keyLabel(key),
					"limit", res.Limit,
					"retry_after", res.RetryAfter,
				)
				proxy.WriteError(w, faults.RateLimited("Rate limit exceeded. Please retry later.", res.RetryAfter), requestID)
				return
			}

			if !limiter.Acquire() {
				logger.WarnContext(r.Context(), "concurrency limit exceeded",
					"in_flight", limiter.InFlight(),
				)
				proxy.WriteError(w, faults.RateLimited("Too many concurrent requests. Please retry later.", 0), requestID)
				return
			}
			defer limiter.Release()

			ctx := context.WithValue(r.Context(), ClientKeyKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientKey derives the identity a request is counted against.
func clientKey(r *http.Request, keyBy string) string {
	if keyBy == KeyByAPIKey {
		if apiKey := proxy.ExtractAPIKey(r); apiKey != "" {
			return "key:" + apiKey
		}
	}
	return "ip:" + remoteIP(r)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// keyLabel keeps raw API keys out of logs.
func keyLabel(key string) string {
	if apiKey, ok := strings.CutPrefix(key, "key:"); ok {
		return "key:" + logging.RedactAPIKey(apiKey)
	}
	return key
}
