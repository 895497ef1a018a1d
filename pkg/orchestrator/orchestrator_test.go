package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fetchkit/pkg/errors"
	"fetchkit/pkg/health"
	"fetchkit/pkg/logger"
	"fetchkit/pkg/retry"
	"fetchkit/pkg/session"
)

// mockLimiter records acquires and can fail with a canned error
type mockLimiter struct {
	mu       sync.Mutex
	acquires int
	err      error
}

func (m *mockLimiter) Acquire(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.acquires++
	return nil
}

func (m *mockLimiter) Reset() {}

func (m *mockLimiter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquires
}

// mockSessionStore is an in-memory session store
type mockSessionStore struct {
	mu          sync.Mutex
	blob        *session.Blob
	invalidates int
	saveErr     error
}

func (m *mockSessionStore) Load() (*session.Blob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blob == nil {
		return nil, false
	}
	return m.blob, true
}

func (m *mockSessionStore) Save(blob *session.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.blob = blob
	return nil
}

func (m *mockSessionStore) Invalidate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob = nil
	m.invalidates++
	return nil
}

func (m *mockSessionStore) invalidateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidates
}

func fastPolicy(maxAttempts int) *retry.Policy {
	return &retry.Policy{
		MaxAttempts: maxAttempts,
		Backoff: &retry.ClassBackoff{
			RateLimitBackoff: &retry.ConstantBackoff{Delay: time.Millisecond},
			DefaultBackoff:   &retry.ConstantBackoff{Delay: time.Millisecond},
		},
		Classify: errors.DefaultClassifier,
		Logger:   logger.NewNopLogger(),
	}
}

func newTestOrchestrator(limiter *mockLimiter, sessions session.Store) *Orchestrator {
	return New(limiter, fastPolicy(3), health.NewTracker(), sessions, logger.NewNopLogger())
}

func TestRunSuccess(t *testing.T) {
	limiter := &mockLimiter{}
	o := newTestOrchestrator(limiter, nil)

	err := o.Run(context.Background(), "fetch", func(ctx context.Context) error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, limiter.count())

	snap := o.Health().Snapshot()
	assert.Equal(t, int64(1), snap.Successes)
	assert.Equal(t, int64(0), snap.Failures)
}

func TestRunRecordsOneOutcomePerOperation(t *testing.T) {
	limiter := &mockLimiter{}
	o := newTestOrchestrator(limiter, nil)

	// Fails twice, then succeeds: one success outcome, not three
	calls := 0
	err := o.Run(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New(errors.ClassTransient, "flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	snap := o.Health().Snapshot()
	assert.Equal(t, int64(1), snap.Successes)
	assert.Equal(t, int64(0), snap.Failures)

	// Retries happen inside one rate limit slot
	assert.Equal(t, 1, limiter.count())
}

func TestRunRecordsFailureOnExhaustion(t *testing.T) {
	o := newTestOrchestrator(&mockLimiter{}, nil)

	err := o.Run(context.Background(), "fetch", func(ctx context.Context) error {
		return errors.New(errors.ClassTransient, "still down")
	})

	require.Error(t, err)
	assert.True(t, errors.IsRetriesExhausted(err))

	snap := o.Health().Snapshot()
	assert.Equal(t, int64(0), snap.Successes)
	assert.Equal(t, int64(1), snap.Failures)
}

func TestRunRecordsWrappedTimeoutAsFailure(t *testing.T) {
	// An HTTP client timeout wraps context.DeadlineExceeded but the caller's
	// context is still live, so exhaustion must count as a failure.
	o := newTestOrchestrator(&mockLimiter{}, nil)

	err := o.Run(context.Background(), "fetch", func(ctx context.Context) error {
		return errors.Wrap(errors.ClassTransient,
			fmt.Errorf("Get \"https://example.com/a\": %w", context.DeadlineExceeded))
	})

	require.Error(t, err)
	assert.True(t, errors.IsRetriesExhausted(err))

	snap := o.Health().Snapshot()
	assert.Equal(t, int64(0), snap.Successes)
	assert.Equal(t, int64(1), snap.Failures)
}

func TestRunInvalidatesExpiredSession(t *testing.T) {
	sessions := &mockSessionStore{blob: session.NewBlob("alice")}
	o := newTestOrchestrator(&mockLimiter{}, sessions)

	err := o.Run(context.Background(), "fetch", func(ctx context.Context) error {
		return errors.New(errors.ClassAuthExpired, "session rejected")
	})

	require.Error(t, err)
	assert.Equal(t, 1, sessions.invalidateCount())

	_, ok := sessions.Load()
	assert.False(t, ok)
}

func TestRunKeepsSessionOnOtherFailures(t *testing.T) {
	blob := session.NewBlob("alice")
	blob.Cookies["sessionid"] = "x"
	sessions := &mockSessionStore{blob: blob}
	o := newTestOrchestrator(&mockLimiter{}, sessions)

	o.Run(context.Background(), "fetch", func(ctx context.Context) error {
		return errors.New(errors.ClassFatal, "not found")
	})

	assert.Equal(t, 0, sessions.invalidateCount())
}

func TestRunCancelledBeforeSlotRecordsNothing(t *testing.T) {
	limiter := &mockLimiter{err: context.Canceled}
	o := newTestOrchestrator(limiter, nil)

	err := o.Run(context.Background(), "fetch", func(ctx context.Context) error {
		t.Fatal("operation must not run without a slot")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)

	snap := o.Health().Snapshot()
	assert.Equal(t, int64(0), snap.Total)
}

func TestRunCancelledBetweenAttemptsRecordsNothing(t *testing.T) {
	o := newTestOrchestrator(&mockLimiter{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := o.Run(ctx, "fetch", func(ctx context.Context) error {
		cancel()
		return errors.New(errors.ClassTransient, "flaky")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), o.Health().Snapshot().Total)
}

func TestRunSerializesOperations(t *testing.T) {
	o := newTestOrchestrator(&mockLimiter{}, nil)

	var inFlight, maxInFlight int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Run(context.Background(), "fetch", func(ctx context.Context) error {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight, "operations sharing an orchestrator must run serially")
	assert.Equal(t, int64(5), o.Health().Snapshot().Successes)
}

func TestRunGeneric(t *testing.T) {
	o := newTestOrchestrator(&mockLimiter{}, nil)

	record, err := Run(context.Background(), o, "fetch", func(ctx context.Context) ([]byte, error) {
		return []byte("payload"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), record)

	_, err = Run(context.Background(), o, "fetch", func(ctx context.Context) ([]byte, error) {
		return nil, errors.New(errors.ClassFatal, "gone")
	})
	assert.Error(t, err)
}

func TestRunClassifiedStatusCodes(t *testing.T) {
	o := newTestOrchestrator(&mockLimiter{}, nil)

	// 404 is fatal: one attempt, one failure
	calls := 0
	err := o.Run(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		return errors.FromStatusCode(404, fmt.Sprintf("attempt %d", calls))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), o.Health().Snapshot().Failures)
}
