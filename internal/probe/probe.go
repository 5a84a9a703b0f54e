package probe

import (
	"context"
	"time"
)

const (
	defaultPerAttemptTimeout = 5 * time.Second
	defaultInterAttemptDelay = 100 * time.Millisecond
)

// Fetcher performs exactly one network attempt against a target.
//
// A returned status code means the target answered, whatever the code.
// A non-nil error means the attempt failed; its message becomes the failure
// reason. Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, target string, timeout time.Duration) (int, error)
}

// FetcherFunc adapts an ordinary function to the [Fetcher] interface.
type FetcherFunc func(ctx context.Context, target string, timeout time.Duration) (int, error)

// Fetch calls f(ctx, target, timeout).
func (f FetcherFunc) Fetch(ctx context.Context, target string, timeout time.Duration) (int, error) {
	return f(ctx, target, timeout)
}

// RetryPolicy controls how many times a target is attempted.
type RetryPolicy struct {
	// MaxAttempts is the number of retries after the first attempt.
	// Total attempts = MaxAttempts + 1. Negative values are treated as 0.
	MaxAttempts int

	// PerAttemptTimeout is passed to the Fetcher on every attempt.
	PerAttemptTimeout time.Duration

	// InterAttemptDelay is slept after a failed attempt that will be retried.
	// It is never slept after the final attempt.
	InterAttemptDelay time.Duration
}

// DefaultRetryPolicy returns a single-attempt policy with a 5s timeout and
// a 100ms delay should retries be enabled later.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       0,
		PerAttemptTimeout: defaultPerAttemptTimeout,
		InterAttemptDelay: defaultInterAttemptDelay,
	}
}

// TotalAttempts returns the upper bound on Fetcher calls for one target.
func (p RetryPolicy) TotalAttempts() int {
	if p.MaxAttempts < 0 {
		return 1
	}
	return p.MaxAttempts + 1
}

// Outcome holds the final result of probing one target.
//
// Exactly one of StatusCode and Err is meaningful: Err == nil marks a
// success carrying StatusCode, Err != nil marks a failure whose reason is
// the error of the last failed attempt.
type Outcome struct {
	// Target is the probed endpoint.
	Target string

	// StatusCode is the HTTP status code of the successful attempt.
	StatusCode int

	// Err is the last attempt's failure. nil on success.
	Err error

	// Elapsed spans the first attempt start to the last attempt end,
	// inter-attempt delays included.
	Elapsed time.Duration

	// ObservedAt is the wall-clock instant the probe finished.
	ObservedAt time.Time

	// Attempts is the number of Fetcher calls made.
	Attempts int
}

// Succeeded reports whether the target answered with a status code.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Reason returns the failure description, or "" for a success.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Do probes target according to policy and returns its [Outcome].
//
// Do never returns an error: every failure mode is represented inside the
// Outcome. Only the most recent failure is kept. If ctx is cancelled during
// an inter-attempt delay, no further attempts are made and the failure seen
// so far is reported.
func Do(ctx context.Context, target string, policy RetryPolicy, fetcher Fetcher) Outcome {
	total := policy.TotalAttempts()
	start := time.Now()

	var (
		lastErr  error
		attempts int
	)
	for attempts < total {
		attempts++
		code, err := fetcher.Fetch(ctx, target, policy.PerAttemptTimeout)
		if err == nil {
			return finish(target, start, attempts, code, nil)
		}
		lastErr = err

		if attempts == total {
			break
		}
		if !sleep(ctx, policy.InterAttemptDelay) {
			break
		}
	}

	return finish(target, start, attempts, 0, lastErr)
}

func finish(target string, start time.Time, attempts, code int, err error) Outcome {
	now := time.Now()
	return Outcome{
		Target:     target,
		StatusCode: code,
		Err:        err,
		Elapsed:    now.Sub(start),
		ObservedAt: now,
		Attempts:   attempts,
	}
}

// sleep blocks for d or until ctx is done. It reports whether the caller
// should keep going.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
