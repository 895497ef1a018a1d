// Package ratelimit provides request pacing and sliding window rate
// limiting for fetch jobs.
//
// This package keeps outbound request rates below remote service limits
// and spreads requests out over time so traffic does not look automated.
//
// Available Implementations:
//
// Sliding Window:
//   - Tracks request slots within a moving time window
//   - Blocks when the window is full until the oldest slot ages out
//   - Applies a uniform random delay to every acquired slot
//   - Default implementation used by the orchestrator
//
// Redis Window:
//   - Same sliding window semantics with slots in a Redis sorted set
//   - Lets multiple processes share one request budget
//   - Claims slots with a single atomic script
//   - Falls back to pacing only when Redis is unreachable
//
// Interface:
//
// All rate limiters implement the Limiter interface:
//   - Acquire(ctx) error - Block until a slot is available, then record it
//   - Reset() - Reset the limiter state
//
// Usage:
//
//	// Sliding window: 100 requests per hour, 5-10s between requests
//	limiter := ratelimit.NewSlidingWindow(100, time.Hour)
//	limiter.SetDelayRange(5*time.Second, 10*time.Second)
//
//	if err := limiter.Acquire(ctx); err != nil {
//	    // Context cancelled while waiting
//	    return err
//	}
//	// Proceed with request
package ratelimit
