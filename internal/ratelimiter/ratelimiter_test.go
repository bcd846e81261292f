package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestAllowEnforcesBurst(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		if !limiter.Allow() {
			t.Fatalf("operation %d should be allowed within burst", i)
		}
	}
	if limiter.Allow() {
		t.Fatal("operation should be throttled after burst exhausted")
	}

	// 10 ops/s refills one token every 100ms.
	time.Sleep(110 * time.Millisecond)
	if !limiter.Allow() {
		t.Fatal("operation should be allowed after refill")
	}
}

func TestWaitBlocksForToken(t *testing.T) {
	limiter := New(10, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("first wait should succeed immediately: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("second wait should succeed after blocking: %v", err)
	}
	elapsed := time.Since(start)

	// Expect roughly 100ms, with margin for scheduler jitter.
	if elapsed < 50*time.Millisecond || elapsed > 300*time.Millisecond {
		t.Fatalf("wait of %v outside expected range", elapsed)
	}
}

func TestWaitRespectsContext(t *testing.T) {
	limiter := New(1, 1)
	if !limiter.Allow() {
		t.Fatal("first operation should be allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Fatal("Wait should fail once the context deadline passes")
	}
}

func TestBurstDefaultsToRate(t *testing.T) {
	limiter := New(5, 0)

	allowed := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow() {
			allowed++
		}
	}
	if allowed != 5 {
		t.Fatalf("expected burst of 5 when unspecified, got %d", allowed)
	}
}

func TestUnlimited(t *testing.T) {
	limiter := New(0, 0)
	for i := 0; i < 1000; i++ {
		if !limiter.Allow() {
			t.Fatalf("unlimited limiter throttled operation %d", i)
		}
	}
}

func TestTokens(t *testing.T) {
	limiter := New(10, 10)

	initial := limiter.Tokens()
	if initial < 9 || initial > 10 {
		t.Fatalf("initial tokens %f outside expected range", initial)
	}

	for i := 0; i < 5; i++ {
		limiter.Allow()
	}
	remaining := limiter.Tokens()
	if remaining < 4 || remaining > 6 {
		t.Fatalf("remaining tokens %f outside expected range", remaining)
	}
}
