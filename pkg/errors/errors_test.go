package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatusCode(t *testing.T) {
	tests := []struct {
		code     int
		expected Class
	}{
		{0, ClassTransient},
		{429, ClassRateLimited},
		{401, ClassAuthExpired},
		{403, ClassAuthExpired},
		{404, ClassFatal},
		{400, ClassFatal},
		{500, ClassTransient},
		{502, ClassTransient},
		{503, ClassTransient},
	}

	for _, test := range tests {
		if got := ClassifyStatusCode(test.code); got != test.expected {
			t.Errorf("ClassifyStatusCode(%d) = %s, want %s", test.code, got, test.expected)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ClassTransient) {
		t.Error("Expected transient errors to be retryable")
	}
	if !IsRetryable(ClassRateLimited) {
		t.Error("Expected rate-limited errors to be retryable")
	}
	if IsRetryable(ClassAuthExpired) {
		t.Error("Expected auth-expired errors not to be retryable")
	}
	if IsRetryable(ClassFatal) {
		t.Error("Expected fatal errors not to be retryable")
	}
}

func TestDefaultClassifier(t *testing.T) {
	if got := DefaultClassifier(New(ClassRateLimited, "slow down")); got != ClassRateLimited {
		t.Errorf("Expected rate_limited, got %s", got)
	}

	wrapped := fmt.Errorf("fetch failed: %w", New(ClassAuthExpired, "session expired"))
	if got := DefaultClassifier(wrapped); got != ClassAuthExpired {
		t.Errorf("Expected auth_expired through wrapping, got %s", got)
	}

	if got := DefaultClassifier(context.Canceled); got != ClassFatal {
		t.Errorf("Expected cancellation to classify as fatal, got %s", got)
	}

	if got := DefaultClassifier(errors.New("mystery")); got != ClassTransient {
		t.Errorf("Expected unknown errors to classify as transient, got %s", got)
	}
}

func TestRetriesExhaustedUnwrap(t *testing.T) {
	last := New(ClassTransient, "connection reset")
	err := &RetriesExhausted{Attempts: 3, Err: last}

	if !IsRetriesExhausted(err) {
		t.Error("Expected IsRetriesExhausted to match")
	}
	if !IsRetriesExhausted(fmt.Errorf("job failed: %w", err)) {
		t.Error("Expected IsRetriesExhausted to match through wrapping")
	}

	var inner *Error
	if !errors.As(err, &inner) || inner.Class != ClassTransient {
		t.Error("Expected last error to be reachable through Unwrap")
	}
}

func TestErrorFormatting(t *testing.T) {
	withCode := FromStatusCode(429, "too many requests")
	if withCode.Error() != "rate_limited error (code 429): too many requests" {
		t.Errorf("Unexpected message: %s", withCode.Error())
	}

	withoutCode := New(ClassFatal, "profile deleted")
	if withoutCode.Error() != "fatal error: profile deleted" {
		t.Errorf("Unexpected message: %s", withoutCode.Error())
	}
}
