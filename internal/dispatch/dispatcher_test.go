package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/sitecheck/internal/probe"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPolicy() probe.RetryPolicy {
	return probe.RetryPolicy{PerAttemptTimeout: time.Second}
}

// countingFetcher records how many calls are in flight and how often each
// target was fetched.
type countingFetcher struct {
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	calls       atomic.Int64
	delay       time.Duration

	mu   sync.Mutex
	seen map[string]int
}

func newCountingFetcher(delay time.Duration) *countingFetcher {
	return &countingFetcher{delay: delay, seen: make(map[string]int)}
}

func (f *countingFetcher) Fetch(_ context.Context, target string, _ time.Duration) (int, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	f.calls.Add(1)

	f.mu.Lock()
	f.seen[target]++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return 200, nil
}

func makeTargets(n int) []string {
	targets := make([]string, n)
	for i := range targets {
		targets[i] = fmt.Sprintf("http://target-%d.test", i)
	}
	return targets
}

func outcomeTargets(outcomes []probe.Outcome) []string {
	got := make([]string, len(outcomes))
	for i, o := range outcomes {
		got[i] = o.Target
	}
	return got
}

func sortedCopy(s []string) []string {
	cp := append([]string(nil), s...)
	sort.Strings(cp)
	return cp
}

// TestRun_NoLossNoDuplication verifies that every target produces exactly
// one outcome regardless of pool size, including repeated targets.
func TestRun_NoLossNoDuplication(t *testing.T) {
	targets := append(makeTargets(200), "http://dup.test", "http://dup.test")

	for _, workers := range []int{1, 2, 50} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			f := newCountingFetcher(0)
			d := New(workers, testPolicy(), f, WithLogger(testLogger()))

			run, err := d.Run(context.Background(), targets)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(run.Outcomes) != len(targets) {
				t.Fatalf("len(Outcomes) = %d, want %d", len(run.Outcomes), len(targets))
			}

			want := sortedCopy(targets)
			got := sortedCopy(outcomeTargets(run.Outcomes))
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("outcome targets differ at %d: got %q, want %q", i, got[i], want[i])
				}
			}
			if f.calls.Load() != int64(len(targets)) {
				t.Errorf("Fetch calls = %d, want %d", f.calls.Load(), len(targets))
			}
		})
	}
}

// TestRun_SingleWorkerIsFIFO verifies that with one worker outcomes arrive
// in input order, making single-worker runs reproducible.
func TestRun_SingleWorkerIsFIFO(t *testing.T) {
	targets := makeTargets(50)
	d := New(1, testPolicy(), newCountingFetcher(0))

	run, err := d.Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for i, o := range run.Outcomes {
		if o.Target != targets[i] {
			t.Fatalf("Outcomes[%d].Target = %q, want %q", i, o.Target, targets[i])
		}
	}
}

// TestRun_BoundedConcurrency verifies that the pool never exceeds its size
// and never probes a target twice.
func TestRun_BoundedConcurrency(t *testing.T) {
	const workers = 10
	targets := makeTargets(10000)
	f := newCountingFetcher(50 * time.Microsecond)
	d := New(workers, testPolicy(), f)

	run, err := d.Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(run.Outcomes) != len(targets) {
		t.Fatalf("len(Outcomes) = %d, want %d", len(run.Outcomes), len(targets))
	}
	if peak := f.maxInFlight.Load(); peak > workers {
		t.Errorf("max in-flight = %d, want <= %d", peak, workers)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for target, n := range f.seen {
		if n != 1 {
			t.Errorf("target %q fetched %d times, want 1", target, n)
		}
	}
	if len(f.seen) != len(targets) {
		t.Errorf("distinct targets fetched = %d, want %d", len(f.seen), len(targets))
	}
}

// TestRun_ZeroWorkers verifies that an empty pool fails with a distinct
// error before anything is probed.
func TestRun_ZeroWorkers(t *testing.T) {
	f := newCountingFetcher(0)
	d := New(0, testPolicy(), f)

	run, err := d.Run(context.Background(), makeTargets(3))

	if !errors.Is(err, ErrPoolStartup) {
		t.Fatalf("Run() error = %v, want ErrPoolStartup", err)
	}
	if errors.Is(err, ErrShortRun) {
		t.Error("pool startup error should not match ErrShortRun")
	}
	var startupErr *PoolStartupError
	if !errors.As(err, &startupErr) || startupErr.Requested != 0 {
		t.Errorf("error = %#v, want *PoolStartupError{Requested: 0}", err)
	}
	if run != nil {
		t.Errorf("Run() returned %+v, want nil run", run)
	}
	if f.calls.Load() != 0 {
		t.Errorf("Fetch calls = %d, want 0", f.calls.Load())
	}
}

// TestRun_NilFetcher verifies that a missing fetcher is a startup failure.
func TestRun_NilFetcher(t *testing.T) {
	_, err := New(4, testPolicy(), nil).Run(context.Background(), makeTargets(1))
	if !errors.Is(err, ErrPoolStartup) {
		t.Fatalf("Run() error = %v, want ErrPoolStartup", err)
	}
}

// TestRun_FailuresAreData verifies that failing targets never fail the run.
func TestRun_FailuresAreData(t *testing.T) {
	var calls atomic.Int64
	f := probe.FetcherFunc(func(context.Context, string, time.Duration) (int, error) {
		calls.Add(1)
		return 0, errors.New("connection refused")
	})
	targets := makeTargets(20)

	run, err := New(4, testPolicy(), f).Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, o := range run.Outcomes {
		if o.Succeeded() {
			t.Errorf("%s succeeded, want failure", o.Target)
		}
	}
	if calls.Load() != int64(len(targets)) {
		t.Errorf("Fetch calls = %d, want %d (one per target)", calls.Load(), len(targets))
	}
}

// TestRun_WorkerPanicIsShortRun verifies that a panicking probe is
// recovered, the remaining targets are still probed, and the missing
// outcome is surfaced as a short run.
func TestRun_WorkerPanicIsShortRun(t *testing.T) {
	f := probe.FetcherFunc(func(_ context.Context, target string, _ time.Duration) (int, error) {
		if target == "http://boom.test" {
			panic("fetcher exploded")
		}
		return 204, nil
	})
	targets := []string{"http://a.test", "http://boom.test", "http://b.test"}

	run, err := New(2, testPolicy(), f, WithLogger(testLogger())).Run(context.Background(), targets)

	if !errors.Is(err, ErrShortRun) {
		t.Fatalf("Run() error = %v, want ErrShortRun", err)
	}
	var shortRun *ShortRunError
	if !errors.As(err, &shortRun) {
		t.Fatalf("error type = %T, want *ShortRunError", err)
	}
	if shortRun.Expected != 3 || shortRun.Received != 2 {
		t.Errorf("ShortRunError = %d/%d, want 2/3", shortRun.Received, shortRun.Expected)
	}
	if len(shortRun.Missing) != 1 || shortRun.Missing[0] != "http://boom.test" {
		t.Errorf("Missing = %v, want [http://boom.test]", shortRun.Missing)
	}
	if run == nil || len(run.Outcomes) != 2 {
		t.Errorf("partial run should hold 2 outcomes, got %+v", run)
	}
}

// TestRun_EmptyTargets verifies that an empty list completes immediately.
func TestRun_EmptyTargets(t *testing.T) {
	run, err := New(3, testPolicy(), newCountingFetcher(0)).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(run.Outcomes) != 0 {
		t.Errorf("len(Outcomes) = %d, want 0", len(run.Outcomes))
	}
}

// TestRun_CancelledContextStillAccountsForEveryTarget verifies that a
// cancelled run yields one failure outcome per target.
func TestRun_CancelledContextStillAccountsForEveryTarget(t *testing.T) {
	f := probe.FetcherFunc(func(ctx context.Context, _ string, _ time.Duration) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 200, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	targets := makeTargets(25)
	run, err := New(5, testPolicy(), f).Run(ctx, targets)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(run.Outcomes) != len(targets) {
		t.Fatalf("len(Outcomes) = %d, want %d", len(run.Outcomes), len(targets))
	}
	for _, o := range run.Outcomes {
		if !errors.Is(o.Err, context.Canceled) {
			t.Errorf("%s: Err = %v, want context.Canceled", o.Target, o.Err)
		}
	}
}

// TestStart_StreamClosesAfterAllOutcomes verifies that the stream is not
// closed while a slow worker is still probing.
func TestStart_StreamClosesAfterAllOutcomes(t *testing.T) {
	f := probe.FetcherFunc(func(_ context.Context, target string, _ time.Duration) (int, error) {
		if target == "http://slow.test" {
			time.Sleep(100 * time.Millisecond)
		}
		return 200, nil
	})
	targets := append(makeTargets(10), "http://slow.test")

	stream, err := New(4, testPolicy(), f).Start(context.Background(), targets)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var got []string
	for o := range stream {
		got = append(got, o.Target)
	}
	if len(got) != len(targets) {
		t.Fatalf("stream carried %d outcomes before closing, want %d", len(got), len(targets))
	}
	if got[len(got)-1] != "http://slow.test" {
		t.Errorf("last outcome = %q, want the slow target", got[len(got)-1])
	}
}

// recordingObserver counts observer callbacks.
type recordingObserver struct {
	started  atomic.Int64
	finished atomic.Int64
	panicked atomic.Int64
}

func (o *recordingObserver) ProbeStarted(string)         { o.started.Add(1) }
func (o *recordingObserver) ProbeFinished(probe.Outcome) { o.finished.Add(1) }
func (o *recordingObserver) ProbePanicked(string)        { o.panicked.Add(1) }

// TestRun_Observer verifies that the observer sees every probe.
func TestRun_Observer(t *testing.T) {
	obs := &recordingObserver{}
	f := probe.FetcherFunc(func(_ context.Context, target string, _ time.Duration) (int, error) {
		if target == "http://boom.test" {
			panic("boom")
		}
		return 200, nil
	})
	targets := append(makeTargets(9), "http://boom.test")

	_, _ = New(3, testPolicy(), f, WithObserver(obs), WithLogger(testLogger())).Run(context.Background(), targets)

	if obs.started.Load() != 10 {
		t.Errorf("started = %d, want 10", obs.started.Load())
	}
	if obs.finished.Load() != 9 {
		t.Errorf("finished = %d, want 9", obs.finished.Load())
	}
	if obs.panicked.Load() != 1 {
		t.Errorf("panicked = %d, want 1", obs.panicked.Load())
	}
}

// TestRun_OutcomeHandler verifies that the handler sees outcomes in the
// same order they are collected.
func TestRun_OutcomeHandler(t *testing.T) {
	var seen []string
	d := New(4, testPolicy(), newCountingFetcher(0), WithOutcomeHandler(func(o probe.Outcome) {
		seen = append(seen, o.Target)
	}))

	run, err := d.Run(context.Background(), makeTargets(30))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := outcomeTargets(run.Outcomes)
	if len(seen) != len(got) {
		t.Fatalf("handler saw %d outcomes, want %d", len(seen), len(got))
	}
	for i := range got {
		if seen[i] != got[i] {
			t.Fatalf("handler order differs at %d: %q vs %q", i, seen[i], got[i])
		}
	}
}

// TestRun_IndependentRuns verifies that one Dispatcher can serve
// concurrent, independent runs.
func TestRun_IndependentRuns(t *testing.T) {
	d := New(4, testPolicy(), newCountingFetcher(0))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := d.Run(context.Background(), makeTargets(100))
			if err != nil {
				t.Errorf("Run() error = %v", err)
				return
			}
			if len(run.Outcomes) != 100 {
				t.Errorf("len(Outcomes) = %d, want 100", len(run.Outcomes))
			}
		}()
	}
	wg.Wait()
}
