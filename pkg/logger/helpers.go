package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogFetch logs the outcome of a single fetch operation
func LogFetch(operation, target string, success bool, err error) {
	fields := map[string]interface{}{
		"operation": operation,
		"target":    target,
		"success":   success,
	}

	l := GetLogger().WithFields(fields)

	if err != nil {
		l.WithError(err).Error("Fetch failed")
	} else if success {
		l.Info("Fetch completed")
	} else {
		l.Warn("Fetch skipped")
	}
}

// LogRateLimit logs rate limiting events
func LogRateLimit(operation string, wait time.Duration) {
	GetLogger().WithFields(map[string]interface{}{
		"operation": operation,
		"wait":      wait,
		"action":    "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogRetry logs a retry attempt before its backoff sleep
func LogRetry(operation string, attempt int, delay time.Duration, err error) {
	GetLogger().WithFields(map[string]interface{}{
		"operation": operation,
		"attempt":   attempt,
		"delay":     delay,
	}).WithError(err).Warn("Retrying operation")
}

// LogJobProgress logs batch progress
func LogJobProgress(job string, processed, total int) {
	percentage := 0.0
	if total > 0 {
		percentage = float64(processed) / float64(total) * 100
	}

	GetLogger().WithFields(map[string]interface{}{
		"job":        job,
		"processed":  processed,
		"total":      total,
		"percentage": percentage,
	}).Info("Job progress")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
