package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		Multiplier: 2,
		MaxDelay:   10 * time.Millisecond,
	}
}

func TestWithRetry_ExactAttemptCount(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), "test", fastRetry(2), func() (bool, error) {
		attempts++
		return true, errors.New("too many requests")
	})

	// One initial attempt plus two retries, never more.
	assert.Equal(t, 3, attempts)

	var rateLimit *RateLimitError
	require.ErrorAs(t, err, &rateLimit)
	assert.Equal(t, 3, rateLimit.Attempts)
}

func TestWithRetry_SucceedsAfterBackoff(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), "test", fastRetry(4), func() (bool, error) {
		attempts++
		if attempts < 3 {
			return true, errors.New("too many requests")
		}
		return false, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_NonRateLimitFailsImmediately(t *testing.T) {
	boom := errors.New("bad request")
	attempts := 0
	err := withRetry(context.Background(), "test", fastRetry(4), func() (bool, error) {
		attempts++
		return false, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := RetryPolicy{MaxRetries: 4, BaseDelay: time.Minute, Multiplier: 2}
	done := make(chan error, 1)
	go func() {
		done <- withRetry(ctx, "test", policy, func() (bool, error) {
			return true, errors.New("too many requests")
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}

func TestRetryPolicy_DelayGrowsAndCaps(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, policy.delay(0))
	assert.Equal(t, 2*time.Second, policy.delay(1))
	assert.Equal(t, 4*time.Second, policy.delay(2))
	assert.Equal(t, 5*time.Second, policy.delay(3))
	assert.Equal(t, 5*time.Second, policy.delay(10))
}
