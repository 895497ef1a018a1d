package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Acquire blocks until the rate limit allows another request, then
	// records the slot. It fails only on context cancellation.
	Acquire(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// SlidingWindow implements a sliding window rate limiter with randomized
// inter-request pacing. Slot timestamps are non-decreasing in insertion
// order and entries older than the window are evicted to bound memory.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	minDelay    time.Duration
	maxDelay    time.Duration
	slots       []time.Time
	mu          sync.Mutex
}

// NewSlidingWindow creates a new sliding window rate limiter.
// A window of zero or less, or a non-positive request ceiling, disables
// limiting: Acquire then only applies the randomized delay.
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	capacity := maxRequests
	if capacity < 0 {
		capacity = 0
	}
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		slots:       make([]time.Time, 0, capacity),
	}
}

// SetDelayRange configures the uniform random delay applied to every
// acquired slot, smoothing out bursty request patterns.
func (sw *SlidingWindow) SetDelayRange(min, max time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	sw.minDelay = min
	sw.maxDelay = max
}

// Acquire blocks until a slot is available, records it, and applies the
// randomized pacing delay.
func (sw *SlidingWindow) Acquire(ctx context.Context) error {
	for {
		sw.mu.Lock()
		now := time.Now()
		sw.evictExpired(now)

		if !sw.limiting() || len(sw.slots) < sw.maxRequests {
			sw.slots = append(sw.slots, now)
			sw.mu.Unlock()
			return wait(ctx, sw.randomDelay())
		}

		timeToWait := sw.windowSize - now.Sub(sw.slots[0])
		sw.mu.Unlock()

		if timeToWait <= 0 {
			continue
		}
		if err := wait(ctx, timeToWait); err != nil {
			return err
		}
	}
}

// Reset clears all recorded slots
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.slots = sw.slots[:0]
}

// Len returns the number of slots currently inside the window
func (sw *SlidingWindow) Len() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.evictExpired(time.Now())
	return len(sw.slots)
}

func (sw *SlidingWindow) limiting() bool {
	return sw.windowSize > 0 && sw.maxRequests > 0
}

func (sw *SlidingWindow) randomDelay() time.Duration {
	if sw.maxDelay <= 0 {
		return 0
	}
	if sw.maxDelay == sw.minDelay {
		return sw.minDelay
	}
	return sw.minDelay + time.Duration(rand.Int63n(int64(sw.maxDelay-sw.minDelay)))
}

// evictExpired removes slots outside the sliding window. Caller holds the lock.
func (sw *SlidingWindow) evictExpired(now time.Time) {
	if sw.windowSize <= 0 {
		sw.slots = sw.slots[:0]
		return
	}

	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.slots) && sw.slots[i].Before(cutoff) {
		i++
	}

	if i > 0 {
		copy(sw.slots, sw.slots[i:])
		sw.slots = sw.slots[:len(sw.slots)-i]
	}
}

// wait sleeps for the given duration or until the context is cancelled
func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
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
