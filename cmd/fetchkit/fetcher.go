package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fetchkit/pkg/errors"
	"fetchkit/pkg/session"
)

// httpFetcher fetches targets over HTTP. The URL is built by substituting
// the target into a template, and a persisted session's cookies and user
// agent are attached when available.
type httpFetcher struct {
	client      *http.Client
	urlTemplate string
	sessions    session.Store
}

func newHTTPFetcher(urlTemplate string, sessions session.Store) *httpFetcher {
	return &httpFetcher{
		client:      &http.Client{Timeout: 30 * time.Second},
		urlTemplate: urlTemplate,
		sessions:    sessions,
	}
}

// Fetch retrieves the raw response body for one target
func (f *httpFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	url := strings.ReplaceAll(f.urlTemplate, "{target}", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ClassFatal, fmt.Errorf("failed to build request: %w", err))
	}

	req.Header.Set("Accept", "application/json, */*")
	f.applySession(req)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(errors.ClassTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.FromStatusCode(resp.StatusCode, fmt.Sprintf("fetch %s returned %s", target, resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ClassTransient, err)
	}

	return body, nil
}

// applySession attaches persisted cookies, tokens, and user agent
func (f *httpFetcher) applySession(req *http.Request) {
	if f.sessions == nil {
		return
	}

	blob, ok := f.sessions.Load()
	if !ok {
		return
	}

	for name, value := range blob.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	for name, value := range blob.Tokens {
		req.Header.Set(name, value)
	}
	if blob.UserAgent != "" {
		req.Header.Set("User-Agent", blob.UserAgent)
	}
}
