package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"fetchkit/pkg/logger"
)

// acquireScript trims expired slots and claims a new one in a single atomic
// step, so concurrent processes cannot both observe room and overshoot the
// shared ceiling. Returns 1 when a slot was claimed, 0 when the window is
// full.
//
// KEYS[1] = sorted set key
// ARGV[1] = cutoff (UnixNano), ARGV[2] = max slots,
// ARGV[3] = slot score (UnixNano), ARGV[4] = slot member,
// ARGV[5] = key TTL in milliseconds
var acquireScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, ARGV[1])
if redis.call('ZCARD', KEYS[1]) < tonumber(ARGV[2]) then
	redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	return 1
end
return 0
`)

// RedisWindow implements a sliding window rate limiter whose slots live in a
// Redis sorted set, so several processes scraping through the same identity
// share one request budget. Slot scores are UnixNano timestamps; expired
// members are trimmed on every acquire.
//
// Redis being unreachable must never stall a job: on store errors the
// limiter logs a warning and falls back to pacing-only behavior.
type RedisWindow struct {
	client      *redis.Client
	key         string
	windowSize  time.Duration
	maxRequests int
	minDelay    time.Duration
	maxDelay    time.Duration
	logger      logger.Logger
}

// NewRedisWindow creates a Redis-backed sliding window limiter
func NewRedisWindow(client *redis.Client, key string, maxRequests int, windowSize time.Duration, log logger.Logger) *RedisWindow {
	if log == nil {
		log = logger.GetLogger()
	}
	return &RedisWindow{
		client:      client,
		key:         key,
		windowSize:  windowSize,
		maxRequests: maxRequests,
		logger:      log,
	}
}

// SetDelayRange configures the uniform random delay applied to every
// acquired slot.
func (rw *RedisWindow) SetDelayRange(min, max time.Duration) {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	rw.minDelay = min
	rw.maxDelay = max
}

// Acquire blocks until the shared window has room, records the slot, and
// applies the randomized pacing delay.
func (rw *RedisWindow) Acquire(ctx context.Context) error {
	if rw.windowSize <= 0 || rw.maxRequests <= 0 {
		return wait(ctx, rw.randomDelay())
	}

	for {
		now := time.Now()
		cutoff := now.Add(-rw.windowSize).UnixNano()
		member := fmt.Sprintf("%d-%06d", now.UnixNano(), rand.Intn(1000000))

		claimed, err := acquireScript.Run(ctx, rw.client, []string{rw.key},
			cutoff, rw.maxRequests, now.UnixNano(), member,
			rw.windowSize.Milliseconds()).Int()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rw.logger.WithError(err).Warn("Slot store unavailable, falling back to pacing only")
			return wait(ctx, rw.randomDelay())
		}

		if claimed == 1 {
			return wait(ctx, rw.randomDelay())
		}

		timeToWait := rw.timeUntilSlot(ctx, now)
		rw.logger.WithFields(map[string]interface{}{
			"key":  rw.key,
			"wait": timeToWait,
		}).Debug("Shared rate limit reached, waiting")

		if timeToWait <= 0 {
			continue
		}
		if err := wait(ctx, timeToWait); err != nil {
			return err
		}
	}
}

// Reset drops all recorded slots for this key
func (rw *RedisWindow) Reset() {
	if err := rw.client.Del(context.Background(), rw.key).Err(); err != nil {
		rw.logger.WithError(err).Warn("Failed to reset slot store")
	}
}

// timeUntilSlot computes how long until the oldest slot ages out of the window
func (rw *RedisWindow) timeUntilSlot(ctx context.Context, now time.Time) time.Duration {
	oldest, err := rw.client.ZRangeWithScores(ctx, rw.key, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		// Can't see the oldest slot; poll shortly
		return time.Second
	}

	oldestAt := time.Unix(0, int64(oldest[0].Score))
	return rw.windowSize - now.Sub(oldestAt)
}

func (rw *RedisWindow) randomDelay() time.Duration {
	if rw.maxDelay <= 0 {
		return 0
	}
	if rw.maxDelay == rw.minDelay {
		return rw.minDelay
	}
	return rw.minDelay + time.Duration(rand.Int63n(int64(rw.maxDelay-rw.minDelay)))
}
