package gateway

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryBackoffGrowsAndCaps(t *testing.T) {
	p := DefaultRetryPolicy()
	p.BaseDelay = 100 * time.Millisecond
	p.MaxDelay = 250 * time.Millisecond

	first := p.backoff(1)
	if first < 100*time.Millisecond || first > 150*time.Millisecond {
		t.Fatalf("attempt 1 backoff out of range: %s", first)
	}
	third := p.backoff(3)
	if third < 250*time.Millisecond || third > 375*time.Millisecond {
		t.Fatalf("attempt 3 backoff should be capped near MaxDelay: %s", third)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	p := RetryPolicy{
		MaxAttempts: 3,
		Retryable:   func(err error) bool { return false },
		sleep:       func(ctx context.Context, d time.Duration) error { return nil },
	}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := RetryPolicy{
		MaxAttempts: 3,
		Retryable:   func(err error) bool { return true },
	}

	calls := 0
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no retry after cancellation, got %d attempts", calls)
	}
}
