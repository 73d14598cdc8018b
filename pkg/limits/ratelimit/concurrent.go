package ratelimit

import (
	"sync/atomic"
)

// ConcurrentLimiter limits the number of simultaneous in-flight requests.
// It is a lock-free counting semaphore.
type ConcurrentLimiter struct {
	limit   int64
	current atomic.Int64
}

// NewConcurrentLimiter creates a limiter admitting at most limit holders.
//
//	limiter := NewConcurrentLimiter(50)
//	if limiter.Acquire() {
//	    defer limiter.Release()
//	    // process request
//	}
func NewConcurrentLimiter(limit int) *ConcurrentLimiter {
	return &ConcurrentLimiter{limit: int64(limit)}
}

// Acquire takes a slot. If it returns true the caller must call Release.
func (cl *ConcurrentLimiter) Acquire() bool {
	if cl.current.Add(1) > cl.limit {
		cl.current.Add(-1)
		return false
	}
	return true
}

// Release returns a slot.
func (cl *ConcurrentLimiter) Release() {
	cl.current.Add(-1)
}

// Current returns the number of held slots.
func (cl *ConcurrentLimiter) Current() int64 {
	return cl.current.Load()
}

// Limit returns the configured limit.
func (cl *ConcurrentLimiter) Limit() int64 {
	return cl.limit
}

// Remaining returns the number of free slots.
func (cl *ConcurrentLimiter) Remaining() int64 {
	if remaining := cl.limit - cl.current.Load(); remaining > 0 {
		return remaining
	}
	return 0
}
