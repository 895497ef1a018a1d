package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fetchkit/pkg/logger"
)

// FetchJob represents a single fetch task
type FetchJob struct {
	Target string
}

// FetchResult represents the outcome of a fetch job
type FetchResult struct {
	Job      FetchJob
	Record   []byte
	Skipped  bool
	Error    error
	Duration time.Duration
}

// ProcessFunc fetches one target and returns its record. A nil record with
// a nil error means the target was skipped.
type ProcessFunc func(ctx context.Context, target string) ([]byte, bool, error)

// Pool manages concurrent fetch workers
type Pool struct {
	numWorkers  int
	jobQueue    chan FetchJob
	resultQueue chan FetchResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	process     ProcessFunc
	logger      logger.Logger
}

// NewPool creates a fetch worker pool. The pool stops accepting work when
// the parent context is cancelled, but in-flight jobs still drain through
// the result channel.
func NewPool(parent context.Context, numWorkers int, process ProcessFunc, log logger.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	ctx, cancel := context.WithCancel(parent)

	return &Pool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan FetchJob, numWorkers*2),
		resultQueue: make(chan FetchResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		process:     process,
		logger:      log,
	}
}

// Start initializes and starts all workers
func (p *Pool) Start() {
	p.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the job queue, waits for workers to drain, and closes the
// result channel.
func (p *Pool) Stop() {
	close(p.jobQueue)
	p.wg.Wait()
	close(p.resultQueue)
	p.cancel()

	p.logger.Info("Worker pool stopped")
}

// Submit adds a fetch job to the queue
func (p *Pool) Submit(job FetchJob) error {
	select {
	case p.jobQueue <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Results returns the result channel for consuming fetch outcomes
func (p *Pool) Results() <-chan FetchResult {
	return p.resultQueue
}

// worker is the main worker routine
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.DebugWithFields("Worker started", map[string]interface{}{
		"worker_id": id,
	})

	for job := range p.jobQueue {
		select {
		case <-p.ctx.Done():
			p.logger.DebugWithFields("Worker stopping, context cancelled", map[string]interface{}{
				"worker_id": id,
			})
			return
		default:
		}

		result := p.processJob(job, id)

		select {
		case p.resultQueue <- result:
		case <-p.ctx.Done():
			return
		}
	}
}

// processJob handles a single fetch job
func (p *Pool) processJob(job FetchJob, workerID int) FetchResult {
	start := time.Now()

	record, skipped, err := p.process(p.ctx, job.Target)
	result := FetchResult{
		Job:      job,
		Record:   record,
		Skipped:  skipped,
		Error:    err,
		Duration: time.Since(start),
	}

	if err != nil {
		p.logger.ErrorWithFields("Worker failed to fetch target", map[string]interface{}{
			"worker_id": workerID,
			"target":    job.Target,
			"error":     err.Error(),
			"duration":  result.Duration,
		})
	} else {
		p.logger.DebugWithFields("Worker completed job", map[string]interface{}{
			"worker_id": workerID,
			"target":    job.Target,
			"skipped":   skipped,
			"duration":  result.Duration,
		})
	}

	return result
}

// GetQueueSize returns the current number of jobs in the queue
func (p *Pool) GetQueueSize() int {
	return len(p.jobQueue)
}
