package middleware

import (
	"context"
	"time"
)

type contextKey string

const (
	// StartTimeKey stores the time the request entered the middleware chain.
	StartTimeKey contextKey = "start_time"

	// ClientKeyKey stores the identity the rate limiter counted the request
	// against.
	ClientKeyKey contextKey = "client_key"
)

// GetStartTime returns the request start time, or the zero time.
func GetStartTime(ctx context.Context) time.Time {
	if startTime, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return startTime
	}
	return time.Time{}
}

// GetClientKey returns the rate limit identity, or "".
func GetClientKey(ctx context.Context) string {
	if key, ok := ctx.Value(ClientKeyKey).(string); ok {
		return key
	}
	return ""
}
