package scheduler

import (
	"context"
	"time"

	"server/internal/provider"
)

// RetryPolicy decides whether a failed generation attempt is retried and how
// long to wait first. It is a plain value so retry behavior is testable
// without any provider.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy retries transient provider failures once, with a short
// backoff. Permanent errors never consume the retry budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Backoff:     500 * time.Millisecond,
		Retryable:   provider.IsTransient,
	}
}

// ShouldRetry reports whether another attempt follows err at the given
// 1-based attempt number.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	return p.Retryable != nil && p.Retryable(err)
}

// Delay returns the backoff before the attempt following the given one.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.Backoff <= 0 {
		return 0
	}
	return p.Backoff * time.Duration(attempt)
}

// Wait sleeps for the backoff, honoring context cancellation.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	delay := p.Delay(attempt)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
