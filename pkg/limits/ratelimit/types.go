package ratelimit

import "time"

// Config configures a Limiter.
type Config struct {
	// Requests is the number allowed per key per window. Zero disables
	// the window limit.
	Requests int

	// Window is the fixed window length.
	Window time.Duration

	// MaxConcurrent limits simultaneous requests across all keys. Zero
	// means no limit.
	MaxConcurrent int
}

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	// Allowed indicates if the request is permitted.
	Allowed bool

	// Reason explains why the request was rejected.
	Reason string

	// Limit is the configured limit value.
	Limit int64

	// Remaining is how many requests remain in the window.
	Remaining int64

	// Reset is when the current window ends.
	Reset time.Time

	// RetryAfter is how long to wait before retrying.
	RetryAfter time.Duration
}
