package catalog

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterSpacesCalls(t *testing.T) {
	r := NewRateLimiter(100) // 10ms slots
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := r.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("three calls in %v", elapsed)
	}
}

func TestRateLimiterCancelledContext(t *testing.T) {
	r := NewRateLimiter(1)
	ctx, cancel := context.WithCancel(context.Background())

	// first slot is immediate
	if err := r.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	cancel()
	if err := r.Wait(ctx); err == nil {
		t.Fatal("want context error")
	}
}

func TestRateLimiterClampsInvalidRate(t *testing.T) {
	r := NewRateLimiter(0)
	if r.interval != time.Second {
		t.Fatalf("interval: %v", r.interval)
	}
}
