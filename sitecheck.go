package sitecheck

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jpalmerr/sitecheck/internal/dispatch"
	"github.com/jpalmerr/sitecheck/internal/fetch"
	"github.com/jpalmerr/sitecheck/internal/metrics"
	"github.com/jpalmerr/sitecheck/internal/probe"
	"github.com/jpalmerr/sitecheck/internal/telemetry"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultRetryDelay = 100 * time.Millisecond

	// fallbackWorkers is used when the available parallelism is unknown.
	fallbackWorkers = 4
)

// DefaultWorkers returns the default pool size: the number of usable CPUs,
// or 4 if that cannot be determined.
func DefaultWorkers() int {
	if n := runtime.NumCPU(); n >= 1 {
		return n
	}
	return fallbackWorkers
}

// Checker probes lists of targets with a bounded worker pool.
//
// A Checker is created using [New] with functional options and holds no
// per-run state: [Checker.Run] may be called repeatedly, including
// concurrently, and every call produces an independent [Run].
//
// The typical lifecycle is:
//
//	c, err := sitecheck.New(sitecheck.WithWorkers(8), sitecheck.WithRetries(2))
//	if err != nil {
//	    slog.Error("failed to create checker", "error", err)
//	    os.Exit(1)
//	}
//	defer c.Close()
//
//	run, err := c.Run(ctx, []string{"https://example.com"})
type Checker struct {
	workers          int
	policy           probe.RetryPolicy
	fetcher          probe.Fetcher
	httpFetcher      *fetch.HTTPFetcher
	logger           *slog.Logger
	outcomeCallbacks []func(Outcome)
	recorder         *metrics.Recorder
	tracer           trace.Tracer
}

// New creates a [Checker] with the given options.
//
// Defaults:
//   - Workers: [DefaultWorkers]
//   - Timeout per attempt: 5 seconds
//   - Retries: 0 (one attempt per target)
//   - Retry delay: 100 milliseconds
//
// Returns an error if any option is invalid or metrics cannot be registered.
func New(opts ...Option) (*Checker, error) {
	cfg := &checkerConfig{
		workers:    DefaultWorkers(),
		timeout:    defaultTimeout,
		retryDelay: defaultRetryDelay,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Checker{
		workers: cfg.workers,
		policy: probe.RetryPolicy{
			MaxAttempts:       cfg.retries,
			PerAttemptTimeout: cfg.timeout,
			InterAttemptDelay: cfg.retryDelay,
		},
		logger:           logger,
		outcomeCallbacks: cfg.outcomeCallbacks,
	}

	var fetcher probe.Fetcher = cfg.fetcher
	if fetcher == nil {
		c.httpFetcher = fetch.New(
			fetch.WithMethod(cfg.method),
			fetch.WithHeaders(cfg.headers),
			fetch.WithMaxConnsPerHost(cfg.workers),
		)
		fetcher = c.httpFetcher
	}

	if cfg.tracerProvider != nil {
		c.tracer = cfg.tracerProvider.Tracer(telemetry.TracerName)
		fetcher = telemetry.Fetcher(fetcher, c.tracer)
	}

	if cfg.registerer != nil {
		recorder, err := metrics.NewRecorder(cfg.registerer)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		c.recorder = recorder
		fetcher = recorder.Fetcher(fetcher)
	}

	c.fetcher = fetcher
	return c, nil
}

// Run probes every target and returns one [Outcome] per target.
//
// Run blocks until every target has been probed. Individual target failures
// are recorded in the outcomes and never make Run fail. Run returns an
// error only when:
//
//   - the pool cannot be started: [ErrPoolStartup], with a nil Run
//   - fewer outcomes than targets were produced: [ErrShortRun], with the
//     partial Run
//   - ctx was cancelled: the complete Run (remaining targets fail fast with
//     the context error as their reason) and an error wrapping ctx.Err()
func (c *Checker) Run(ctx context.Context, targets []string) (*Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	runID := uuid.NewString()
	logger := c.logger.With("run_id", runID)

	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, "sitecheck.run", trace.WithAttributes(
			attribute.String("sitecheck.run_id", runID),
			attribute.Int("sitecheck.targets", len(targets)),
			attribute.Int("sitecheck.workers", c.workers),
		))
		defer span.End()
		defer func() {
			if ctx.Err() != nil {
				span.SetStatus(codes.Error, ctx.Err().Error())
			}
		}()
	}

	logger.Info("run starting",
		"targets", len(targets),
		"workers", c.workers,
		"timeout", c.policy.PerAttemptTimeout.String(),
		"retries", c.policy.MaxAttempts,
	)

	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithOutcomeHandler(c.handleOutcome(logger)),
	}
	if c.recorder != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithObserver(c.recorder))
	}

	d := dispatch.New(c.workers, c.policy, c.fetcher, dispatchOpts...)
	dr, err := d.Run(ctx, targets)
	if dr == nil {
		logger.Error("worker pool failed to start", "error", err)
		return nil, err
	}

	run := dispatchRunToPublic(runID, c.workers, dr)
	if err != nil {
		logger.Error("run incomplete", "error", err, "received", len(run.Outcomes), "expected", len(targets))
		return run, err
	}

	ok, failed := run.Counts()
	logger.Info("run finished",
		"succeeded", ok,
		"failed", failed,
		"duration_ms", run.Duration().Milliseconds(),
	)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return run, fmt.Errorf("run interrupted: %w", ctxErr)
	}
	return run, nil
}

// Close releases idle connections held by the default fetcher.
// The Checker remains usable after Close.
func (c *Checker) Close() {
	c.httpFetcher.Close()
}

// Workers returns the configured pool size.
func (c *Checker) Workers() int {
	return c.workers
}

// Timeout returns the per-attempt timeout.
func (c *Checker) Timeout() time.Duration {
	return c.policy.PerAttemptTimeout
}

// Retries returns the number of retries after the first attempt.
func (c *Checker) Retries() int {
	return c.policy.MaxAttempts
}

// RetryDelay returns the fixed delay slept before each retry.
func (c *Checker) RetryDelay() time.Duration {
	return c.policy.InterAttemptDelay
}

// handleOutcome returns the collector-side handler that fans an outcome
// out to the registered callbacks.
func (c *Checker) handleOutcome(logger *slog.Logger) func(probe.Outcome) {
	if len(c.outcomeCallbacks) == 0 {
		return nil
	}
	return func(o probe.Outcome) {
		public := probeOutcomeToPublic(o)
		for _, cb := range c.outcomeCallbacks {
			invokeCallbackSafe(cb, public, logger)
		}
	}
}

// invokeCallbackSafe calls an outcome callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Outcome), outcome Outcome, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("outcome callback panicked",
				"panic", r,
				"url", outcome.Target,
			)
		}
	}()
	cb(outcome)
}
