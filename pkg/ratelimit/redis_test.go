package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"fetchkit/pkg/logger"
)

// unreachableClient points at a port nothing listens on, so every command
// fails fast.
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRedisWindowFallsBackWhenUnavailable(t *testing.T) {
	rw := NewRedisWindow(unreachableClient(), "test:slots", 1, time.Hour, logger.NewNopLogger())

	// The ceiling is 1, but with the store unreachable both acquires must
	// degrade to pacing only instead of blocking.
	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := rw.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire %d returned %v, want fallback to pacing", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("fallback acquires took %v, want fast degradation", elapsed)
	}
}

func TestRedisWindowDisabled(t *testing.T) {
	// Zero window disables shared limiting entirely; the client is never
	// touched.
	rw := NewRedisWindow(nil, "test:slots", 10, 0, logger.NewNopLogger())
	if err := rw.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire returned %v, want nil", err)
	}
}

func TestRedisWindowCancellation(t *testing.T) {
	rw := NewRedisWindow(unreachableClient(), "test:slots", 1, time.Hour, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rw.Acquire(ctx); err != context.Canceled {
		t.Fatalf("Acquire returned %v, want context.Canceled", err)
	}
}

func TestRedisWindowResetUnavailable(t *testing.T) {
	rw := NewRedisWindow(unreachableClient(), "test:slots", 1, time.Hour, logger.NewNopLogger())
	rw.Reset()
}
