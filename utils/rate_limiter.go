package utils

import (
	"context"
	"sync"
	"time"

	"tripwire/models"
)

// MemoryRateLimiter implements fixed-window counters in process memory.
// Used when Redis is not configured and as the deterministic implementation
// in tests. The window resets fully at windowStart + window; counts never
// carry over.
type MemoryRateLimiter struct {
	windows map[string]*fixedWindow
	mutex   sync.Mutex
}

type fixedWindow struct {
	count       int
	windowStart time.Time
}

// NewMemoryRateLimiter creates an in-memory fixed-window rate limiter
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		windows: make(map[string]*fixedWindow),
	}
}

// CheckAndIncrement atomically checks and consumes one slot for key. Two
// concurrent callers racing on the same key cannot both be admitted when
// only one slot remains; the mutex covers the full check-then-increment.
func (rl *MemoryRateLimiter) CheckAndIncrement(ctx context.Context, key string, maxRequests int, window time.Duration) (*models.RateLimitDecision, error) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()

	w, exists := rl.windows[key]
	if !exists || now.Sub(w.windowStart) >= window {
		w = &fixedWindow{windowStart: now}
		rl.windows[key] = w
	}

	resetAt := w.windowStart.Add(window)

	if w.count >= maxRequests {
		return &models.RateLimitDecision{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   resetAt,
		}, nil
	}

	w.count++

	return &models.RateLimitDecision{
		Allowed:   true,
		Remaining: maxRequests - w.count,
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the window for key
func (rl *MemoryRateLimiter) Reset(key string) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	delete(rl.windows, key)
}

// Cleanup drops windows whose reset time is already past. Callers run this
// periodically to keep the map from growing unbounded.
func (rl *MemoryRateLimiter) Cleanup(maxWindow time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := time.Now().Add(-maxWindow)
	for key, w := range rl.windows {
		if w.windowStart.Before(cutoff) {
			delete(rl.windows, key)
		}
	}
}
