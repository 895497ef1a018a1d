package health

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"fetchkit/pkg/logger"
)

// Prometheus metrics for fetch outcomes.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchkit_requests_total",
		Help: "Total number of fetch operations by terminal result",
	}, []string{"result"})
)

// Tracker counts fetch outcomes with lock-free atomics. All methods are
// safe for concurrent use.
type Tracker struct {
	successes   atomic.Int64
	failures    atomic.Int64
	lastSuccess atomic.Int64 // UnixNano, 0 when none yet
	startedAt   atomic.Int64 // UnixNano, written by Reset
}

// Snapshot is a point-in-time view of tracker state
type Snapshot struct {
	Successes   int64         `json:"successes"`
	Failures    int64         `json:"failures"`
	Total       int64         `json:"total"`
	SuccessRate float64       `json:"success_rate"`
	StartedAt   time.Time     `json:"started_at"`
	LastSuccess time.Time     `json:"last_success,omitempty"`
	Runtime     time.Duration `json:"runtime"`
}

// NewTracker creates a tracker with its clock started now
func NewTracker() *Tracker {
	t := &Tracker{}
	t.startedAt.Store(time.Now().UnixNano())
	return t
}

// RecordSuccess counts one successful operation
func (t *Tracker) RecordSuccess() {
	t.successes.Add(1)
	t.lastSuccess.Store(time.Now().UnixNano())
	requestsTotal.WithLabelValues("success").Inc()
}

// RecordFailure counts one failed operation
func (t *Tracker) RecordFailure() {
	t.failures.Add(1)
	requestsTotal.WithLabelValues("failure").Inc()
}

// Snapshot returns current counts. The success rate is a percentage
// rounded to two decimals, and zero before any outcome is recorded.
func (t *Tracker) Snapshot() Snapshot {
	successes := t.successes.Load()
	failures := t.failures.Load()
	total := successes + failures

	rate := 0.0
	if total > 0 {
		rate = math.Round(float64(successes)/float64(total)*100*100) / 100
	}

	startedAt := time.Unix(0, t.startedAt.Load())
	snap := Snapshot{
		Successes:   successes,
		Failures:    failures,
		Total:       total,
		SuccessRate: rate,
		StartedAt:   startedAt,
		Runtime:     time.Since(startedAt),
	}

	if last := t.lastSuccess.Load(); last > 0 {
		snap.LastSuccess = time.Unix(0, last)
	}

	return snap
}

// Reset zeroes the counters and restarts the clock
func (t *Tracker) Reset() {
	t.successes.Store(0)
	t.failures.Store(0)
	t.lastSuccess.Store(0)
	t.startedAt.Store(time.Now().UnixNano())
}

// RequestsPerMinute returns the observed throughput since start
func (s Snapshot) RequestsPerMinute() float64 {
	minutes := s.Runtime.Minutes()
	if minutes <= 0 {
		return 0
	}
	return float64(s.Total) / minutes
}

// LogReport emits the snapshot as a structured log line
func (t *Tracker) LogReport(log logger.Logger) {
	if log == nil {
		log = logger.GetLogger()
	}

	snap := t.Snapshot()
	fields := map[string]interface{}{
		"successes":    snap.Successes,
		"failures":     snap.Failures,
		"total":        snap.Total,
		"success_rate": snap.SuccessRate,
		"runtime":      snap.Runtime,
		"req_per_min":  snap.RequestsPerMinute(),
	}
	if !snap.LastSuccess.IsZero() {
		fields["last_success"] = snap.LastSuccess
	}

	log.InfoWithFields("Health report", fields)
}
