package provider

import (
	"context"
	"time"

	"github.com/sublingo/sublingo/internal/config"
	"github.com/sublingo/sublingo/pkg/log"
)

// RetryPolicy bounds the backoff applied when a backend rate-limits.
// MaxRetries counts retries beyond the first attempt, so the default makes
// five attempts total. Only rate-limit class responses are retried; every
// other failure raises immediately.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 4,
		BaseDelay:  time.Second,
		Multiplier: 2,
		MaxDelay:   30 * time.Second,
	}
}

func loadRetryPolicy(ctx context.Context, store *config.Store) RetryPolicy {
	def := DefaultRetryPolicy()
	return RetryPolicy{
		MaxRetries: store.GetInt(ctx, config.KeyMaxRetries, def.MaxRetries),
		BaseDelay:  store.GetDurationMs(ctx, config.KeyRetryBaseDelay, def.BaseDelay),
		Multiplier: store.GetFloat(ctx, config.KeyRetryMultiplier, def.Multiplier),
		MaxDelay:   store.GetDurationMs(ctx, config.KeyRetryMaxDelay, def.MaxDelay),
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// withRetry runs fn until it succeeds, fails with a non-rate-limit error, or
// the retry budget is exhausted. fn reports whether its failure was a
// rate-limit class response. The backoff sleep honors ctx.
func withRetry(ctx context.Context, provider string, policy RetryPolicy, fn func() (rateLimited bool, err error)) error {
	attempts := policy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; ; attempt++ {
		rateLimited, err := fn()
		if err == nil {
			return nil
		}
		if !rateLimited {
			return err
		}
		if attempt >= attempts-1 {
			return &RateLimitError{Provider: provider, Attempts: attempts}
		}

		delay := policy.delay(attempt)
		log.Warn("%s rate limited, retrying in %s (attempt %d/%d)", provider, delay, attempt+1, attempts)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
