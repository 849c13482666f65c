package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"server/internal/provider"
)

func TestShouldRetry(t *testing.T) {
	policy := DefaultRetryPolicy()
	transient := &provider.ProviderError{StatusCode: 503, Transient: true}
	permanent := &provider.ProviderError{StatusCode: 400}

	cases := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"transient first attempt", transient, 1, true},
		{"transient at budget", transient, 2, false},
		{"permanent", permanent, 1, false},
		{"nil error", nil, 1, false},
		{"plain error", errors.New("boom"), 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := policy.ShouldRetry(tc.err, tc.attempt); got != tc.want {
				t.Fatalf("ShouldRetry = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDelayGrowsLinearly(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Backoff: 100 * time.Millisecond}
	if d := policy.Delay(1); d != 100*time.Millisecond {
		t.Fatalf("Delay(1) = %v", d)
	}
	if d := policy.Delay(2); d != 200*time.Millisecond {
		t.Fatalf("Delay(2) = %v", d)
	}
	if d := (RetryPolicy{}).Delay(1); d != 0 {
		t.Fatalf("zero backoff Delay = %v", d)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, Backoff: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := policy.Wait(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait = %v, want context.Canceled", err)
	}

	fast := RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond}
	if err := fast.Wait(context.Background(), 1); err != nil {
		t.Fatalf("Wait = %v", err)
	}
}
