package retry

import (
	"context"
	"time"

	"fetchkit/pkg/errors"
	"fetchkit/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// Policy holds retry configuration
type Policy struct {
	// MaxAttempts is the maximum number of attempts; values below 1 mean 1
	MaxAttempts int
	// Backoff selects the delay strategy per error class
	Backoff *ClassBackoff
	// Classify maps errors to classes; nil uses errors.DefaultClassifier
	Classify errors.Classifier
	// OnRetry is called before each backoff sleep
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultPolicy returns a retry policy with sensible defaults
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		Backoff:     NewClassBackoff(),
		Classify:    errors.DefaultClassifier,
		Logger:      logger.GetLogger(),
	}
}

// Execute runs op until it succeeds, fails unrecoverably, or the attempt
// budget is spent. Non-retryable classes return immediately; exhausted
// budgets return a RetriesExhausted wrapping the last error.
func (p *Policy) Execute(ctx context.Context, op Operation) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	classify := p.Classify
	if classify == nil {
		classify = errors.DefaultClassifier
	}

	backoff := p.Backoff
	if backoff == nil {
		backoff = NewClassBackoff()
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 && p.Logger != nil {
				p.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		lastErr = err
		class := classify(err)

		if !errors.IsRetryable(class) {
			if p.Logger != nil {
				p.Logger.DebugWithFields("error is not retryable", map[string]interface{}{
					"class": string(class),
					"error": err.Error(),
				})
			}
			return err
		}

		if attempt >= maxAttempts {
			break
		}

		delay := backoff.ForClass(class).NextDelay(attempt)

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}

		if p.Logger != nil {
			p.Logger.WarnWithFields("retrying operation", map[string]interface{}{
				"attempt":      attempt,
				"max_attempts": maxAttempts,
				"class":        string(class),
				"delay_ms":     delay.Milliseconds(),
				"error":        err.Error(),
			})
		}

		if err := Wait(ctx, delay); err != nil {
			return err
		}
	}

	if p.Logger != nil {
		p.Logger.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
			"attempts":   maxAttempts,
			"last_error": lastErr.Error(),
		})
	}
	return &errors.RetriesExhausted{Attempts: maxAttempts, Err: lastErr}
}

// ExecuteWithResult runs an operation that returns a result with retry logic
func ExecuteWithResult[T any](ctx context.Context, p *Policy, op OperationWithResult[T]) (T, error) {
	var result T

	err := p.Execute(ctx, func(ctx context.Context) error {
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

// WithMaxAttempts returns a copy of the policy with updated max attempts
func (p *Policy) WithMaxAttempts(maxAttempts int) *Policy {
	np := *p
	np.MaxAttempts = maxAttempts
	return &np
}

// WithBackoff returns a copy of the policy with updated backoff strategies
func (p *Policy) WithBackoff(backoff *ClassBackoff) *Policy {
	np := *p
	np.Backoff = backoff
	return &np
}
