// Package middleware provides the relay's HTTP middleware.
//
// The server assembles the chain outermost first:
//
//	Recovery -> RequestID -> Logging -> SecurityHeaders -> CORS -> RateLimit -> Auth -> handler
//
// Recovery sits outside everything so a panic anywhere is answered with an
// OpenAI-format 500. RequestID runs before Logging so every log record,
// including the access log line, carries request_id through the logging
// package's context handler.
//
// # Streaming
//
// The Logging wrapper implements Unwrap, Flush and Hijack. Event streams
// flush through http.ResponseController and WebSocket upgrades hijack
// through it, so neither is affected by the wrapper.
//
// # Rate Limiting
//
// RateLimitMiddleware counts requests per identity in fixed windows and
// caps concurrent requests. Rejections are 429 responses with Retry-After
// and the standard error body:
//
//	limits:
//	  rate_limit:
//	    enabled: true
//	    requests: 60
//	    window: 1m
//	    key_by: api_key
//	    max_concurrent: 200
//
// Request timeouts are not middleware. Each request's lifecycle
// coordinator arms its own watchdogs.
package middleware
