// Package sitecheck probes lists of HTTP endpoints concurrently and reports
// one outcome per endpoint.
//
// sitecheck is an SDK first: the sitecheck command is a thin layer over
// [Checker]. A Checker runs a fixed-size worker pool, probes every target
// with a bounded retry policy, and returns a [Run] holding exactly one
// [Outcome] per submitted target. A target that answers with any HTTP
// status code, 5xx included, succeeded; a target that could not be reached
// failed, and the failure is data in the outcome rather than an error.
//
// # Quick Start
//
//	c, err := sitecheck.New(
//	    sitecheck.WithWorkers(8),
//	    sitecheck.WithTimeout(3 * time.Second),
//	    sitecheck.WithRetries(2),
//	)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	run, err := c.Run(ctx, []string{"https://example.com", "https://example.org"})
//	if err != nil {
//	    return err
//	}
//	for _, o := range run.InTargetOrder() {
//	    fmt.Println(o.Target, o.StatusCode, o.Reason())
//	}
//
// # Retries
//
// Each target gets 1 + retries attempts. A fixed delay is slept before every
// retry, never after the last attempt. An outcome's Elapsed covers all
// attempts and delays, and a failed outcome keeps only the reason of its
// final attempt.
//
// # Errors
//
// [Checker.Run] fails only for whole-run problems:
//
//   - [ErrPoolStartup]: the pool could not start (zero workers)
//   - [ErrShortRun]: fewer outcomes than targets were produced
//
// Cancelling the context makes remaining probes fail fast; Run then returns
// the complete run together with an error wrapping the context error.
//
// # Grids
//
// [ExpandGrid] turns a URL template and a set of dimensions into the
// cartesian product of target URLs.
//
// # Architecture
//
// sitecheck consists of several internal packages (under internal/):
//
//   - internal/probe: Single-target probing with retry policy
//   - internal/fetch: Pooled HTTP fetcher
//   - internal/dispatch: Worker pool and outcome collection
//   - internal/report: JSON/YAML report and console rendering
//   - internal/history: Run history storage (memory, SQLite)
//   - internal/metrics: Prometheus metrics and /metrics server
//   - internal/telemetry: OpenTelemetry tracing
//   - internal/logging: slog handler construction
//
// The internal packages are not part of the public API and may change
// without notice.
package sitecheck
