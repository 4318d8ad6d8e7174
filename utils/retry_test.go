package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// immediate keeps retry tests fast; the schedule length is what matters.
var immediate = []time.Duration{time.Millisecond, time.Millisecond}

func TestExecuteWithRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	var observed []int

	err := ExecuteWithRetry(context.Background(), immediate, func(attempt int, err error) {
		observed = append(observed, attempt)
		assert.NoError(t, err)
	}, func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []int{1}, observed)
}

func TestExecuteWithRetry_TransientExhaustsSchedule(t *testing.T) {
	calls := 0
	transient := NewTransientDeliveryError(DeliveryErrCodeProviderError, "upstream 503", nil)

	err := ExecuteWithRetry(context.Background(), immediate, nil, func(ctx context.Context) error {
		calls++
		return transient
	})

	require.Error(t, err)
	assert.Equal(t, len(immediate)+1, calls)
	assert.False(t, IsPermanentDeliveryError(err))
}

func TestExecuteWithRetry_TransientThenSuccess(t *testing.T) {
	calls := 0

	err := ExecuteWithRetry(context.Background(), immediate, nil, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientDeliveryError(DeliveryErrCodeTimeout, "send timed out", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_PermanentAbortsImmediately(t *testing.T) {
	calls := 0
	permanent := NewPermanentDeliveryError(DeliveryErrCodeUnregisteredToken, "token gone", nil)

	err := ExecuteWithRetry(context.Background(), immediate, nil, func(ctx context.Context) error {
		calls++
		return permanent
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors must not consume the schedule")
	assert.True(t, IsPermanentDeliveryError(err))
}

func TestExecuteWithRetry_ObserverSeesEveryAttempt(t *testing.T) {
	var attempts []int
	var errs []error

	_ = ExecuteWithRetry(context.Background(), immediate, func(attempt int, err error) {
		attempts = append(attempts, attempt)
		errs = append(errs, err)
	}, func(ctx context.Context) error {
		return NewTransientDeliveryError(DeliveryErrCodeThrottled, "throttled", nil)
	})

	assert.Equal(t, []int{1, 2, 3}, attempts)
	for _, err := range errs {
		assert.Error(t, err)
	}
}

func TestExecuteWithRetry_ContextCancelStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := ExecuteWithRetry(ctx, []time.Duration{time.Hour}, nil, func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientDeliveryError(DeliveryErrCodeProviderError, "flaky", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "cancelled context must interrupt the sleep, not start another attempt")
}

func TestExecuteWithRetry_UnclassifiedErrorIsRetried(t *testing.T) {
	calls := 0

	err := ExecuteWithRetry(context.Background(), []time.Duration{time.Millisecond}, nil, func(ctx context.Context) error {
		calls++
		return errors.New("plain failure")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDefaultBackoffSchedule(t *testing.T) {
	require.Len(t, DefaultBackoffSchedule, 4)
	assert.Equal(t, 2*time.Second, DefaultBackoffSchedule[0])
	assert.Equal(t, 16*time.Second, DefaultBackoffSchedule[3])
	for i := 1; i < len(DefaultBackoffSchedule); i++ {
		assert.Equal(t, 2*DefaultBackoffSchedule[i-1], DefaultBackoffSchedule[i])
	}
}
