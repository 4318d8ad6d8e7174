// services/rate_limit_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"tripwire/models"
)

// RedisRateLimiter enforces fixed-window ceilings on shared Redis counters
// so the limit holds across service instances. Atomicity comes from INCR:
// the returned count is this caller's slot, so two racing callers can never
// both land on the last one.
type RedisRateLimiter struct {
	redis     *redis.Client
	keyPrefix string
}

func NewRedisRateLimiter(redisClient *redis.Client, keyPrefix string) *RedisRateLimiter {
	if keyPrefix == "" {
		keyPrefix = "dispatch_rate"
	}

	return &RedisRateLimiter{
		redis:     redisClient,
		keyPrefix: keyPrefix,
	}
}

func (rl *RedisRateLimiter) CheckAndIncrement(ctx context.Context, key string, maxRequests int, window time.Duration) (*models.RateLimitDecision, error) {
	fullKey := fmt.Sprintf("%s:%s", rl.keyPrefix, key)
	now := time.Now()

	count, err := rl.redis.Incr(ctx, fullKey).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit increment failed: %w", err)
	}

	// First hit in the window owns setting the expiry.
	if count == 1 {
		if err := rl.redis.Expire(ctx, fullKey, window).Err(); err != nil {
			return nil, fmt.Errorf("rate limit expire failed: %w", err)
		}
	}

	ttl, err := rl.redis.PTTL(ctx, fullKey).Result()
	if err != nil || ttl < 0 {
		// Key lost its expiry (e.g. a crash between INCR and EXPIRE);
		// reattach it so the window still closes.
		rl.redis.Expire(ctx, fullKey, window)
		ttl = window
	}

	resetAt := now.Add(ttl)

	remaining := maxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return &models.RateLimitDecision{
		Allowed:   count <= int64(maxRequests),
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// RateLimitKey builds the per-user, per-channel counter key for one window
// name ("minute" or "day").
func RateLimitKey(userID, channel, window string) string {
	return fmt.Sprintf("%s:%s:%s", userID, channel, window)
}
