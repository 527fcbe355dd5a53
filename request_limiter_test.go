package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRequestLimiter(t *testing.T, cfg ThrottleConfig) *requestLimiter {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(func() { mr.Close() })

	return newRequestLimiter(rdb, cfg)
}

func TestRequestLimiterAllowsUpToCap(t *testing.T) {
	limiter := newTestRequestLimiter(t, ThrottleConfig{Enabled: true, MaxRequests: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Check(ctx, "reset", "ALICE"); err != nil {
			t.Fatalf("request %d unexpectedly limited: %v", i+1, err)
		}
	}

	if err := limiter.Check(ctx, "reset", "ALICE"); !errors.Is(err, ErrRequestRateLimited) {
		t.Fatalf("expected ErrRequestRateLimited, got %v", err)
	}
}

func TestRequestLimiterSeparatesOperations(t *testing.T) {
	limiter := newTestRequestLimiter(t, ThrottleConfig{Enabled: true, MaxRequests: 1, Window: time.Minute})
	ctx := context.Background()

	if err := limiter.Check(ctx, "reset", "ALICE"); err != nil {
		t.Fatalf("first reset check failed: %v", err)
	}
	if err := limiter.Check(ctx, "verify", "ALICE"); err != nil {
		t.Fatalf("expected verify window to be independent, got %v", err)
	}
	if err := limiter.Check(ctx, "reset", "BOB"); err != nil {
		t.Fatalf("expected per-user windows, got %v", err)
	}
}

func TestRequestLimiterDisabledPassesEverything(t *testing.T) {
	limiter := newTestRequestLimiter(t, ThrottleConfig{Enabled: false, MaxRequests: 1, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := limiter.Check(ctx, "reset", "ALICE"); err != nil {
			t.Fatalf("disabled limiter rejected request: %v", err)
		}
	}
}
