package sitecheck

import (
	"context"
	"time"
)

// Fetcher performs one network attempt against a target.
//
// Fetch returns the status code of the response, or an error describing why
// no response was obtained. The error's message becomes the outcome's
// failure reason. Implementations are shared by all workers and must be safe
// for concurrent use without external synchronization.
//
// The default Fetcher issues an HTTP request through a pooled client.
// Supply a custom one with [WithFetcher], typically in tests.
type Fetcher interface {
	Fetch(ctx context.Context, target string, timeout time.Duration) (int, error)
}

// FetcherFunc adapts an ordinary function to the [Fetcher] interface.
type FetcherFunc func(ctx context.Context, target string, timeout time.Duration) (int, error)

// Fetch calls f(ctx, target, timeout).
func (f FetcherFunc) Fetch(ctx context.Context, target string, timeout time.Duration) (int, error) {
	return f(ctx, target, timeout)
}
