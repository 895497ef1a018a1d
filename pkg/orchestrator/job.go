package orchestrator

import (
	"context"
	goerrors "errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"fetchkit/internal/worker"
	"fetchkit/pkg/errors"
	"fetchkit/pkg/logger"
	"fetchkit/pkg/storage"
)

// State is a batch job lifecycle phase
type State int32

const (
	StateIdle State = iota
	StateAuthenticating
	StateRunning
	StateSaving
	StateDone
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateRunning:
		return "running"
	case StateSaving:
		return "saving"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Job drives a batch of targets through authentication, fetching, and
// report persistence. A job is single-use: create a new one per batch.
type Job struct {
	Name string

	orch    *Orchestrator
	fetcher Fetcher
	auth    Authenticator
	store   *storage.Manager
	logger  logger.Logger

	concurrency    int
	reportInterval int

	state atomic.Int32

	// reauthMu serializes the single re-login allowed after a session
	// expires mid-batch
	reauthMu   sync.Mutex
	reauthUsed bool
}

// JobOption configures a Job
type JobOption func(*Job)

// WithAuthenticator sets the authenticator used before and during the batch
func WithAuthenticator(auth Authenticator) JobOption {
	return func(j *Job) { j.auth = auth }
}

// WithConcurrency sets the number of fetch workers
func WithConcurrency(n int) JobOption {
	return func(j *Job) { j.concurrency = n }
}

// WithReportInterval logs a health report every n processed targets
func WithReportInterval(n int) JobOption {
	return func(j *Job) { j.reportInterval = n }
}

// NewJob creates a batch job
func NewJob(name string, orch *Orchestrator, fetcher Fetcher, store *storage.Manager, opts ...JobOption) *Job {
	j := &Job{
		Name:        name,
		orch:        orch,
		fetcher:     fetcher,
		store:       store,
		logger:      logger.GetLogger().WithField("job", name),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// State returns the job's current lifecycle phase
func (j *Job) State() State {
	return State(j.state.Load())
}

func (j *Job) setState(s State) {
	j.state.Store(int32(s))
	j.logger.WithField("state", s.String()).Debug("Job state changed")
}

// Run processes all targets and persists a report. Cancellation is safe:
// completed records stay on disk and the report covers the work done so
// far. The returned report is non-nil even when err is not.
func (j *Job) Run(ctx context.Context, targets []string) (*storage.Report, error) {
	startedAt := time.Now()
	report := &storage.Report{
		Job:       j.Name,
		StartedAt: startedAt,
		Targets:   len(targets),
		Failures:  make(map[string]string),
	}

	j.setState(StateAuthenticating)
	if err := j.authenticate(ctx); err != nil {
		j.finish(report)
		return report, fmt.Errorf("authentication failed: %w", err)
	}

	j.setState(StateRunning)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := worker.NewPool(runCtx, j.concurrency, j.processTarget, j.logger)
	pool.Start()

	// Feed targets; stop early on cancellation
	go func() {
		defer pool.Stop()
		for _, target := range targets {
			if err := pool.Submit(worker.FetchJob{Target: target}); err != nil {
				return
			}
		}
	}()

	var aborted error
	processed := 0
	for result := range pool.Results() {
		processed++

		switch {
		case result.Skipped:
			report.Skipped++
		case result.Error != nil:
			report.Failed++
			report.Failures[result.Job.Target] = result.Error.Error()

			if j.sessionLost(ctx, result.Error) {
				aborted = result.Error
				cancel()
			}
		default:
			report.Succeeded++
		}

		if j.reportInterval > 0 && processed%j.reportInterval == 0 {
			j.orch.Health().LogReport(j.logger)
			logger.LogJobProgress(j.Name, processed, len(targets))
		}
	}

	j.finish(report)

	if aborted != nil {
		return report, fmt.Errorf("session lost and re-login failed: %w", aborted)
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// finish moves the job through Saving and persists the report
func (j *Job) finish(report *storage.Report) {
	j.setState(StateSaving)

	report.FinishedAt = time.Now()
	if total := report.Succeeded + report.Failed; total > 0 {
		report.SuccessRate = math.Round(float64(report.Succeeded)/float64(total)*100*100) / 100
	}

	if j.store != nil {
		if err := j.store.SaveReport(report); err != nil {
			j.logger.WithError(err).Error("Failed to save report")
		}
	}

	j.orch.Health().LogReport(j.logger)
	j.setState(StateDone)
}

// processTarget fetches one target through the orchestrator
func (j *Job) processTarget(ctx context.Context, target string) ([]byte, bool, error) {
	if j.store != nil && j.store.IsFetched(target) {
		return nil, true, nil
	}

	record, err := Run(ctx, j.orch, "fetch "+target, func(ctx context.Context) ([]byte, error) {
		return j.fetcher.Fetch(ctx, target)
	})
	if err != nil {
		return nil, false, err
	}

	if j.store != nil {
		if err := j.store.SaveRecord(target, record); err != nil {
			return nil, false, err
		}
	}

	return record, false, nil
}

// authenticate resumes a persisted session or performs a fresh login
func (j *Job) authenticate(ctx context.Context) error {
	if j.auth == nil {
		return nil
	}

	store := j.orch.Sessions()
	if store != nil {
		if blob, ok := store.Load(); ok {
			if err := j.auth.Probe(ctx, blob); err == nil {
				j.logger.WithField("account", blob.Account).Info("Resumed persisted session")
				return nil
			} else if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
				return err
			}

			j.logger.Info("Persisted session rejected, logging in fresh")
			if err := store.Invalidate(); err != nil {
				j.logger.WithError(err).Warn("Failed to invalidate stale session")
			}
		}
	}

	return j.login(ctx)
}

// login performs a fresh login and persists the resulting session
func (j *Job) login(ctx context.Context) error {
	blob, err := j.auth.Login(ctx)
	if err != nil {
		return err
	}

	if store := j.orch.Sessions(); store != nil && blob != nil {
		if err := store.Save(blob); err != nil {
			// Fetching can proceed on the live session
			j.logger.WithError(err).Warn("Failed to persist session")
		}
	}

	j.logger.Info("Logged in")
	return nil
}

// sessionLost handles an auth-expired failure mid-batch. One re-login is
// attempted per job, under the job's context so cancellation can still
// unwind it; it returns true when the batch must abort.
func (j *Job) sessionLost(ctx context.Context, err error) bool {
	if j.auth == nil || !isAuthExpired(err) {
		return false
	}

	j.reauthMu.Lock()
	defer j.reauthMu.Unlock()

	if j.reauthUsed {
		return true
	}
	j.reauthUsed = true

	j.logger.Warn("Session expired mid-batch, attempting re-login")
	if lerr := j.login(ctx); lerr != nil {
		j.logger.WithError(lerr).Error("Re-login failed, aborting batch")
		return true
	}

	return false
}

// isAuthExpired reports whether err is an auth-expired failure, looking
// through a retries-exhausted wrapper.
func isAuthExpired(err error) bool {
	var re *errors.RetriesExhausted
	if goerrors.As(err, &re) {
		err = re.Err
	}
	return errors.DefaultClassifier(err) == errors.ClassAuthExpired
}
