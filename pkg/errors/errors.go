package errors

import (
	"context"
	"errors"
	"fmt"
)

// Class categorizes a failure for retry and backoff decisions
type Class string

const (
	// ClassTransient covers network timeouts and 5xx responses; retried with the default backoff
	ClassTransient Class = "transient"
	// ClassRateLimited covers 429s and vendor throttle signals; retried with the longer rate-limit backoff
	ClassRateLimited Class = "rate_limited"
	// ClassAuthExpired means the session no longer authenticates; surfaced for re-login, never retried blindly
	ClassAuthExpired Class = "auth_expired"
	// ClassFatal covers not-found and permanently invalid targets; surfaced immediately
	ClassFatal Class = "fatal"
)

// Classifier maps a vendor-specific failure into a Class.
// Supplied by the caller, since only the caller knows its vendor's error taxonomy.
type Classifier func(error) Class

// Error is a classified failure with optional HTTP status context
type Error struct {
	Class   Class
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Class, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error
func New(class Class, message string) *Error {
	return &Error{Class: class, Message: message}
}

// Wrap classifies an existing error
func Wrap(class Class, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Message: err.Error(), Err: err}
}

// IsRetryable reports whether a class should be retried
func IsRetryable(class Class) bool {
	switch class {
	case ClassTransient, ClassRateLimited:
		return true
	default:
		return false
	}
}

// DefaultClassifier classifies errors produced by this library and falls back
// to treating unknown errors as transient. Context cancellation is fatal:
// retrying a cancelled operation never helps.
func DefaultClassifier(err error) Class {
	if err == nil {
		return ClassTransient
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Class
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}

	return ClassTransient
}

// FromStatusCode builds a classified error from an HTTP status code
func FromStatusCode(code int, message string) *Error {
	return &Error{Class: ClassifyStatusCode(code), Message: message, Code: code}
}

// ClassifyStatusCode maps an HTTP status code onto the failure taxonomy
func ClassifyStatusCode(code int) Class {
	switch {
	case code == 0: // network error, no response
		return ClassTransient
	case code == 429:
		return ClassRateLimited
	case code == 401 || code == 403:
		return ClassAuthExpired
	case code == 404:
		return ClassFatal
	case code >= 500:
		return ClassTransient
	default:
		return ClassFatal
	}
}

// RetriesExhausted is returned when an operation keeps failing with retryable
// errors until no attempts remain. It wraps the last observed error.
type RetriesExhausted struct {
	Attempts int
	Err      error
}

func (e *RetriesExhausted) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhausted) Unwrap() error {
	return e.Err
}

// IsRetriesExhausted reports whether err is a RetriesExhausted failure
func IsRetriesExhausted(err error) bool {
	var exhausted *RetriesExhausted
	return errors.As(err, &exhausted)
}
