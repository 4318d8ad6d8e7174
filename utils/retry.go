package utils

import (
	"context"
	"time"
)

// DefaultBackoffSchedule is the canonical retry schedule applied uniformly
// across channels: 4 retries after the initial attempt.
var DefaultBackoffSchedule = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

// AttemptObserver is invoked after every attempt, successful or not, with
// the 1-based attempt number and the attempt's error (nil on success).
type AttemptObserver func(attempt int, err error)

// ExecuteWithRetry drives a bounded backoff loop around fn. Total attempts
// are len(schedule)+1. Permanent delivery errors abort immediately without
// consuming the schedule; transient errors sleep schedule[i] before the
// next attempt. This is the only place in the dispatch path allowed to
// sleep, and the sleep is interruptible by ctx.
func ExecuteWithRetry(ctx context.Context, schedule []time.Duration, onAttempt AttemptObserver, fn func(ctx context.Context) error) error {
	maxAttempts := len(schedule) + 1

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(ctx)

		if onAttempt != nil {
			onAttempt(attempt, err)
		}

		if err == nil {
			return nil
		}

		if IsPermanentDeliveryError(err) {
			return err
		}

		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(schedule[attempt-1]):
		case <-ctx.Done():
			return err
		}
	}

	return err
}
