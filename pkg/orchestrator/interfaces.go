package orchestrator

import (
	"context"

	"fetchkit/pkg/session"
)

// Fetcher retrieves the raw record for one target. Implementations
// classify their failures with the errors package so the retry policy can
// tell transient faults from fatal ones.
type Fetcher interface {
	Fetch(ctx context.Context, target string) ([]byte, error)
}

// Authenticator establishes and validates sessions against the remote
// service.
type Authenticator interface {
	// Login performs a fresh login and returns the resulting session
	Login(ctx context.Context) (*session.Blob, error)
	// Probe checks that a persisted session is still accepted
	Probe(ctx context.Context, blob *session.Blob) error
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, target string) ([]byte, error)

// Fetch calls f
func (f FetcherFunc) Fetch(ctx context.Context, target string) ([]byte, error) {
	return f(ctx, target)
}
