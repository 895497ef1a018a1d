package orchestrator

import (
	"context"
	goerrors "errors"
	"sync"

	"fetchkit/pkg/errors"
	"fetchkit/pkg/health"
	"fetchkit/pkg/logger"
	"fetchkit/pkg/ratelimit"
	"fetchkit/pkg/retry"
	"fetchkit/pkg/session"
)

// Orchestrator composes rate limiting, retries, health tracking, and
// session persistence around individual operations. Operations sharing one
// orchestrator share one session identity and run serially; parallelism
// across identities is achieved with one orchestrator per identity.
type Orchestrator struct {
	limiter  ratelimit.Limiter
	policy   *retry.Policy
	health   *health.Tracker
	sessions session.Store
	logger   logger.Logger
	mu       sync.Mutex
}

// New creates an orchestrator from its parts. Any nil part is replaced
// with a neutral default.
func New(limiter ratelimit.Limiter, policy *retry.Policy, tracker *health.Tracker, sessions session.Store, log logger.Logger) *Orchestrator {
	if limiter == nil {
		limiter = ratelimit.NewSlidingWindow(0, 0)
	}
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	if tracker == nil {
		tracker = health.NewTracker()
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Orchestrator{
		limiter:  limiter,
		policy:   policy,
		health:   tracker,
		sessions: sessions,
		logger:   log,
	}
}

// Health returns the orchestrator's health tracker
func (o *Orchestrator) Health() *health.Tracker {
	return o.health
}

// Sessions returns the orchestrator's session store, which may be nil
func (o *Orchestrator) Sessions() session.Store {
	return o.sessions
}

// Run executes op under the rate limit and retry policy, recording exactly
// one terminal health outcome. A cancellation while still waiting for a
// rate limit slot records nothing, since the operation never ran.
func (o *Orchestrator) Run(ctx context.Context, name string, op retry.Operation) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.limiter.Acquire(ctx); err != nil {
		return err
	}

	err := o.policy.Execute(ctx, op)
	if err == nil {
		o.health.RecordSuccess()
		return nil
	}

	// Caller cancellation is judged by the orchestrator's own context, not
	// the error chain: wrapped HTTP timeouts also satisfy errors.Is on
	// context.DeadlineExceeded but are terminal operation failures.
	if ctx.Err() != nil {
		return err
	}

	o.health.RecordFailure()

	if o.expiredSession(err) {
		o.logger.WithField("operation", name).Warn("Session rejected, invalidating")
		if ierr := o.sessions.Invalidate(); ierr != nil {
			o.logger.WithError(ierr).Error("Failed to invalidate session")
		}
	}

	return err
}

// expiredSession reports whether err means the persisted session is no
// longer accepted.
func (o *Orchestrator) expiredSession(err error) bool {
	if o.sessions == nil {
		return false
	}

	var re *errors.RetriesExhausted
	if goerrors.As(err, &re) {
		err = re.Err
	}
	classify := o.policy.Classify
	if classify == nil {
		classify = errors.DefaultClassifier
	}
	return classify(err) == errors.ClassAuthExpired
}

// Run executes an operation returning a result through the orchestrator
func Run[T any](ctx context.Context, o *Orchestrator, name string, op retry.OperationWithResult[T]) (T, error) {
	var result T

	err := o.Run(ctx, name, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})

	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
