package utils

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiter_AllowsUpToCeiling(t *testing.T) {
	rl := NewMemoryRateLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := rl.CheckAndIncrement(ctx, "sms:user-1:minute", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 2-i, decision.Remaining)
	}

	decision, err := rl.CheckAndIncrement(ctx, "sms:user-1:minute", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
	assert.False(t, decision.ResetAt.IsZero())
}

func TestMemoryRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewMemoryRateLimiter()
	ctx := context.Background()

	d1, err := rl.CheckAndIncrement(ctx, "push:user-1:minute", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, d1.Allowed)

	d2, err := rl.CheckAndIncrement(ctx, "push:user-2:minute", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, d2.Allowed, "a second user must not inherit the first user's window")
}

func TestMemoryRateLimiter_WindowResets(t *testing.T) {
	rl := NewMemoryRateLimiter()
	ctx := context.Background()
	window := 20 * time.Millisecond

	d, err := rl.CheckAndIncrement(ctx, "email:user-1:minute", 1, window)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = rl.CheckAndIncrement(ctx, "email:user-1:minute", 1, window)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	time.Sleep(window + 5*time.Millisecond)

	d, err = rl.CheckAndIncrement(ctx, "email:user-1:minute", 1, window)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "counts must not carry over into the next window")
}

func TestMemoryRateLimiter_ConcurrentCallersNeverOverAdmit(t *testing.T) {
	rl := NewMemoryRateLimiter()
	ctx := context.Background()
	const ceiling = 10
	const callers = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := rl.CheckAndIncrement(ctx, "push:user-1:minute", ceiling, time.Minute)
			if err != nil {
				return
			}
			if decision.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, ceiling, admitted)
}

func TestMemoryRateLimiter_Reset(t *testing.T) {
	rl := NewMemoryRateLimiter()
	ctx := context.Background()

	d, _ := rl.CheckAndIncrement(ctx, "k", 1, time.Minute)
	require.True(t, d.Allowed)
	d, _ = rl.CheckAndIncrement(ctx, "k", 1, time.Minute)
	require.False(t, d.Allowed)

	rl.Reset("k")

	d, _ = rl.CheckAndIncrement(ctx, "k", 1, time.Minute)
	assert.True(t, d.Allowed)
}
