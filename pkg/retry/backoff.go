package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"fetchkit/pkg/errors"
)

// BackoffStrategy defines the interface for different backoff strategies
type BackoffStrategy interface {
	// NextDelay returns the delay before the given attempt (1-based)
	NextDelay(attempt int) time.Duration
	// Reset resets the backoff strategy to initial state
	Reset()
}

// ExponentialBackoff implements exponential backoff with jitter
type ExponentialBackoff struct {
	// BaseDelay is the initial delay duration
	BaseDelay time.Duration
	// MaxDelay is the maximum delay duration
	MaxDelay time.Duration
	// Multiplier is the factor by which delay increases
	Multiplier float64
	// JitterFactor adds randomness to avoid thundering herd (0.0 to 1.0)
	JitterFactor float64
}

// DefaultExponentialBackoff returns a backoff with sensible defaults
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay calculates the next delay with exponential backoff and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))

	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	// Add jitter to avoid thundering herd
	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		randomJitter := (rand.Float64() * 2 * jitter) - jitter
		delay += randomJitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// Reset resets the backoff to initial state
func (eb *ExponentialBackoff) Reset() {}

// LinearBackoff implements linear backoff strategy
type LinearBackoff struct {
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay is the maximum delay duration
	MaxDelay time.Duration
	// Increment is the amount to increase delay by each attempt
	Increment time.Duration
	// JitterFactor adds randomness (0.0 to 1.0)
	JitterFactor float64
}

// NextDelay calculates the next delay with linear backoff
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(lb.BaseDelay + lb.Increment*time.Duration(attempt-1))

	if lb.MaxDelay > 0 && delay > float64(lb.MaxDelay) {
		delay = float64(lb.MaxDelay)
	}

	if lb.JitterFactor > 0 {
		jitter := delay * lb.JitterFactor
		randomJitter := (rand.Float64() * 2 * jitter) - jitter
		delay += randomJitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// Reset resets the backoff to initial state
func (lb *LinearBackoff) Reset() {}

// ConstantBackoff implements constant delay backoff
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Reset resets the backoff (no-op for constant backoff)
func (cb *ConstantBackoff) Reset() {}

// ClassBackoff selects a backoff strategy from the error class. Rate limit
// responses get a much longer ramp than ordinary transient failures since
// retrying them quickly only extends the penalty window.
type ClassBackoff struct {
	// RateLimitBackoff for rate limit errors
	RateLimitBackoff BackoffStrategy
	// DefaultBackoff for all other retryable errors
	DefaultBackoff BackoffStrategy
}

// NewClassBackoff creates a class-based backoff with the standard ramps
func NewClassBackoff() *ClassBackoff {
	return &ClassBackoff{
		RateLimitBackoff: &ExponentialBackoff{
			BaseDelay:    30 * time.Second,
			MaxDelay:     5 * time.Minute,
			Multiplier:   2.0,
			JitterFactor: 0.3,
		},
		DefaultBackoff: DefaultExponentialBackoff(),
	}
}

// ForClass returns the backoff strategy for the given error class
func (cb *ClassBackoff) ForClass(class errors.Class) BackoffStrategy {
	if class == errors.ClassRateLimited {
		return cb.RateLimitBackoff
	}
	return cb.DefaultBackoff
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
