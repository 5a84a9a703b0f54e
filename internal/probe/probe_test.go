package probe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedFetcher replays a fixed sequence of results, repeating the last
// entry once the script is exhausted.
type scriptedFetcher struct {
	mu       sync.Mutex
	script   []scriptStep
	calls    int
	timeouts []time.Duration
}

type scriptStep struct {
	code int
	err  error
}

func (f *scriptedFetcher) Fetch(_ context.Context, _ string, timeout time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.calls
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	f.calls++
	f.timeouts = append(f.timeouts, timeout)
	step := f.script[idx]
	return step.code, step.err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// TestDo_NoRetriesMakesOneCall verifies that MaxAttempts = 0 with an
// always-failing fetcher produces a failure after exactly one call.
func TestDo_NoRetriesMakesOneCall(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{{err: errors.New("connection refused")}}}
	policy := RetryPolicy{MaxAttempts: 0, PerAttemptTimeout: time.Second, InterAttemptDelay: 10 * time.Millisecond}

	out := Do(context.Background(), "http://a", policy, f)

	if out.Succeeded() {
		t.Fatal("Do() succeeded, want failure")
	}
	if f.Calls() != 1 {
		t.Errorf("Fetch calls = %d, want 1", f.Calls())
	}
	if out.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", out.Attempts)
	}
	if out.Reason() != "connection refused" {
		t.Errorf("Reason() = %q, want %q", out.Reason(), "connection refused")
	}
}

// TestDo_SucceedsAfterRetries verifies that two failures followed by a
// success yields a success after three calls, with both delays counted in
// the elapsed time.
func TestDo_SucceedsAfterRetries(t *testing.T) {
	const delay = 30 * time.Millisecond
	f := &scriptedFetcher{script: []scriptStep{
		{err: errors.New("fail 1")},
		{err: errors.New("fail 2")},
		{code: 200},
	}}
	policy := RetryPolicy{MaxAttempts: 2, PerAttemptTimeout: time.Second, InterAttemptDelay: delay}

	out := Do(context.Background(), "http://a", policy, f)

	if !out.Succeeded() {
		t.Fatalf("Do() failed with %v, want success", out.Err)
	}
	if out.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", out.StatusCode)
	}
	if f.Calls() != 3 {
		t.Errorf("Fetch calls = %d, want 3", f.Calls())
	}
	if out.Elapsed < 2*delay {
		t.Errorf("Elapsed = %v, want >= %v", out.Elapsed, 2*delay)
	}
}

// TestDo_LastFailureWins verifies that only the most recent failure reason
// is kept.
func TestDo_LastFailureWins(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{
		{err: errors.New("A")},
		{err: errors.New("B")},
	}}
	policy := RetryPolicy{MaxAttempts: 1, PerAttemptTimeout: time.Second}

	out := Do(context.Background(), "http://a", policy, f)

	if out.Reason() != "B" {
		t.Errorf("Reason() = %q, want %q", out.Reason(), "B")
	}
	if f.Calls() != 2 {
		t.Errorf("Fetch calls = %d, want 2", f.Calls())
	}
}

// TestDo_AnyStatusCodeIsSuccess verifies that server errors still count as
// an answer and are not retried.
func TestDo_AnyStatusCodeIsSuccess(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{{code: 503}}}
	policy := RetryPolicy{MaxAttempts: 3, PerAttemptTimeout: time.Second, InterAttemptDelay: time.Second}

	out := Do(context.Background(), "http://a", policy, f)

	if !out.Succeeded() || out.StatusCode != 503 {
		t.Errorf("Outcome = (%d, %v), want (503, nil)", out.StatusCode, out.Err)
	}
	if f.Calls() != 1 {
		t.Errorf("Fetch calls = %d, want 1", f.Calls())
	}
}

// TestDo_NoDelayAfterFinalAttempt verifies that the delay is only applied
// between attempts.
func TestDo_NoDelayAfterFinalAttempt(t *testing.T) {
	const delay = 200 * time.Millisecond
	f := &scriptedFetcher{script: []scriptStep{{err: errors.New("down")}}}
	policy := RetryPolicy{MaxAttempts: 1, PerAttemptTimeout: time.Second, InterAttemptDelay: delay}

	out := Do(context.Background(), "http://a", policy, f)

	if out.Elapsed < delay {
		t.Errorf("Elapsed = %v, want >= %v", out.Elapsed, delay)
	}
	if out.Elapsed >= 2*delay {
		t.Errorf("Elapsed = %v, want < %v (no trailing delay)", out.Elapsed, 2*delay)
	}
}

// TestDo_PassesPerAttemptTimeout verifies that every attempt receives the
// configured timeout.
func TestDo_PassesPerAttemptTimeout(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{{err: errors.New("x")}}}
	policy := RetryPolicy{MaxAttempts: 2, PerAttemptTimeout: 1500 * time.Millisecond}

	Do(context.Background(), "http://a", policy, f)

	for i, got := range f.timeouts {
		if got != 1500*time.Millisecond {
			t.Errorf("timeouts[%d] = %v, want 1.5s", i, got)
		}
	}
}

// TestDo_CancelledDuringDelay verifies that cancellation stops the retry
// loop and still returns a failure outcome.
func TestDo_CancelledDuringDelay(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{{err: errors.New("down")}}}
	policy := RetryPolicy{MaxAttempts: 5, PerAttemptTimeout: time.Second, InterAttemptDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	out := Do(ctx, "http://a", policy, f)

	if out.Succeeded() {
		t.Fatal("Do() succeeded, want failure")
	}
	if f.Calls() != 1 {
		t.Errorf("Fetch calls = %d, want 1", f.Calls())
	}
	if out.Target != "http://a" {
		t.Errorf("Target = %q, want %q", out.Target, "http://a")
	}
}

// TestDo_NegativeMaxAttempts verifies that a negative retry count is
// treated as a single attempt.
func TestDo_NegativeMaxAttempts(t *testing.T) {
	f := &scriptedFetcher{script: []scriptStep{{err: errors.New("down")}}}

	Do(context.Background(), "http://a", RetryPolicy{MaxAttempts: -3}, f)

	if f.Calls() != 1 {
		t.Errorf("Fetch calls = %d, want 1", f.Calls())
	}
}

// TestDefaultRetryPolicy verifies the documented defaults.
func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxAttempts != 0 {
		t.Errorf("MaxAttempts = %d, want 0", p.MaxAttempts)
	}
	if p.PerAttemptTimeout != 5*time.Second {
		t.Errorf("PerAttemptTimeout = %v, want 5s", p.PerAttemptTimeout)
	}
	if p.TotalAttempts() != 1 {
		t.Errorf("TotalAttempts() = %d, want 1", p.TotalAttempts())
	}
}
