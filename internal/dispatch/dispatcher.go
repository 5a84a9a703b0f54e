package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/sitecheck/internal/probe"
)

// Observer receives worker lifecycle events.
//
// Methods are called concurrently from every worker and must be safe for
// concurrent use. They must not block.
type Observer interface {
	// ProbeStarted is called when a worker dequeues a target.
	ProbeStarted(target string)

	// ProbeFinished is called with the outcome before it is sent to the collector.
	ProbeFinished(outcome probe.Outcome)

	// ProbePanicked is called when probing a target panicked. No outcome
	// is emitted for that target.
	ProbePanicked(target string)
}

// Dispatcher runs a fixed-size pool of workers over a list of targets.
//
// Every submitted target is delivered to exactly one worker and produces
// exactly one outcome; retries happen only inside [probe.Do]. A Dispatcher
// holds no per-run state and may be reused for independent runs.
type Dispatcher struct {
	workers   int
	policy    probe.RetryPolicy
	fetcher   probe.Fetcher
	logger    *slog.Logger
	observer  Observer
	onOutcome func(probe.Outcome)
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithLogger sets the logger used for worker events.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver registers an [Observer] for worker events.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// WithOutcomeHandler registers a function called from the collecting
// goroutine for every outcome as it arrives.
func WithOutcomeHandler(fn func(probe.Outcome)) Option {
	return func(d *Dispatcher) {
		d.onOutcome = fn
	}
}

// New creates a [Dispatcher] with the given pool size, retry policy and fetcher.
//
// The pool size is checked when a run starts, not here, so a misconfigured
// Dispatcher surfaces [ErrPoolStartup] from [Dispatcher.Run].
func New(workers int, policy probe.RetryPolicy, fetcher probe.Fetcher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		workers: workers,
		policy:  policy,
		fetcher: fetcher,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Workers returns the configured pool size.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Start launches the worker pool and returns the result stream.
//
// All targets are enqueued in input order before Start returns. The stream
// is closed once every worker has exited; it carries one outcome per target
// unless a worker panicked. Start fails with a [*PoolStartupError] when the
// pool cannot be started, in which case nothing is probed.
func (d *Dispatcher) Start(ctx context.Context, targets []string) (<-chan probe.Outcome, error) {
	if d.workers < 1 {
		return nil, &PoolStartupError{Requested: d.workers, Err: errors.New("worker count must be at least 1")}
	}
	if d.fetcher == nil {
		return nil, &PoolStartupError{Requested: d.workers, Err: errors.New("no fetcher configured")}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	jobs := make(chan string, len(targets))
	results := make(chan probe.Outcome, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.work(ctx, id, jobs, results)
		}(i)
	}

	for _, target := range targets {
		jobs <- target
	}
	close(jobs)

	// results is closed only after every worker has returned
	go func() {
		wg.Wait()
		close(results)
	}()

	return results, nil
}

// Run probes every target and collects the outcomes into a [Run].
//
// Run returns a [*PoolStartupError] (and a nil Run) if the pool cannot be
// started, and a [*ShortRunError] (with the partial Run) if some target did
// not produce exactly one outcome.
func (d *Dispatcher) Run(ctx context.Context, targets []string) (*Run, error) {
	startedAt := time.Now()

	stream, err := d.Start(ctx, targets)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("worker pool started", "workers", d.workers, "targets", len(targets))

	run, err := NewCollector(d.onOutcome).Collect(stream, len(targets))
	run.Targets = append([]string(nil), targets...)
	run.StartedAt = startedAt
	run.FinishedAt = time.Now()

	if err != nil {
		var shortRun *ShortRunError
		if errors.As(err, &shortRun) {
			shortRun.Missing = missingTargets(targets, run.Outcomes)
			shortRun.Duplicates = duplicateTargets(targets, run.Outcomes)
		}
		return run, err
	}

	// a full count can still hide a target answered twice and another never
	if dups := duplicateTargets(targets, run.Outcomes); len(dups) > 0 {
		return run, &ShortRunError{
			Expected:   len(targets),
			Received:   len(run.Outcomes),
			Missing:    missingTargets(targets, run.Outcomes),
			Duplicates: dups,
		}
	}
	return run, nil
}

// work drains jobs until the channel is closed.
func (d *Dispatcher) work(ctx context.Context, id int, jobs <-chan string, results chan<- probe.Outcome) {
	for target := range jobs {
		outcome, ok := d.probeSafe(ctx, id, target)
		if !ok {
			continue
		}

		// results is sized to hold every outcome, so this never blocks
		results <- outcome
	}
}

// probeSafe runs a single probe with panic recovery.
// If the probe panics, it logs the full stack trace with a correlation ID
// and reports ok = false so no outcome is emitted for the target.
func (d *Dispatcher) probeSafe(ctx context.Context, id int, target string) (outcome probe.Outcome, ok bool) {
	if d.observer != nil {
		d.observer.ProbeStarted(target)
	}

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			d.logger.Error("probe panic",
				"correlation_id", correlationID,
				"worker", id,
				"url", target,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			if d.observer != nil {
				d.observer.ProbePanicked(target)
			}
			ok = false
		}
	}()

	outcome = probe.Do(ctx, target, d.policy, d.fetcher)

	if d.observer != nil {
		d.observer.ProbeFinished(outcome)
	}

	logAttrs := []any{
		"worker", id,
		"url", outcome.Target,
		"latency_ms", outcome.Elapsed.Milliseconds(),
		"attempts", outcome.Attempts,
	}
	if outcome.Err != nil {
		d.logger.Debug("probe failed", append(logAttrs, "error", outcome.Err.Error())...)
	} else {
		d.logger.Debug("probe completed", append(logAttrs, "status", outcome.StatusCode)...)
	}

	return outcome, true
}
