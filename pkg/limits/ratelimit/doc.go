// Package ratelimit provides the relay's request limits.
//
// # Fixed Window
//
// Each key (a client API key or remote IP) may make Requests requests per
// Window. Windows are aligned to the wall clock, and a rejected request
// reports how long remains until the window resets so the caller can send
// Retry-After:
//
//	limiter := ratelimit.NewLimiter(ratelimit.Config{Requests: 100, Window: time.Minute}, nil)
//	res := limiter.Allow(key)
//
// Expired windows are pruned lazily, at most once per window length.
//
// # Concurrency
//
// MaxConcurrent bounds simultaneous requests across all keys using
// ConcurrentLimiter, a lock-free semaphore.
//
// All types are safe for concurrent use.
package ratelimit
