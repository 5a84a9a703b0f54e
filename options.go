package sitecheck

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// checkerConfig holds mutable state during Checker construction.
type checkerConfig struct {
	workers          int
	timeout          time.Duration
	retries          int
	retryDelay       time.Duration
	method           string
	headers          map[string]string
	fetcher          Fetcher
	logger           *slog.Logger
	outcomeCallbacks []func(Outcome)
	registerer       prometheus.Registerer
	tracerProvider   trace.TracerProvider
}

// Option is a function that configures a [Checker] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*checkerConfig) error

// WithWorkers sets the number of concurrent workers.
//
// If not specified, [DefaultWorkers] is used. Zero is accepted here so that
// a misconfigured pool surfaces as [ErrPoolStartup] from [Checker.Run].
//
// Returns an error if n is negative.
func WithWorkers(n int) Option {
	return func(cfg *checkerConfig) error {
		if n < 0 {
			return errors.New("workers cannot be negative")
		}
		cfg.workers = n
		return nil
	}
}

// WithTimeout sets the timeout of each individual attempt. Defaults to 5s.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *checkerConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithRetries sets how many times a failed target is retried.
// Zero (the default) means exactly one attempt.
//
// Returns an error if n is negative.
func WithRetries(n int) Option {
	return func(cfg *checkerConfig) error {
		if n < 0 {
			return errors.New("retries cannot be negative")
		}
		cfg.retries = n
		return nil
	}
}

// WithRetryDelay sets the fixed delay slept before each retry.
// Defaults to 100ms. The delay is never slept after the final attempt.
//
// Returns an error if the duration is negative.
func WithRetryDelay(d time.Duration) Option {
	return func(cfg *checkerConfig) error {
		if d < 0 {
			return errors.New("retry delay cannot be negative")
		}
		cfg.retryDelay = d
		return nil
	}
}

// WithMethod sets the HTTP method used by the default fetcher.
// Only GET (the default) and HEAD are accepted.
func WithMethod(method string) Option {
	return func(cfg *checkerConfig) error {
		m := strings.ToUpper(method)
		if m != http.MethodGet && m != http.MethodHead {
			return errors.New("method must be GET or HEAD")
		}
		cfg.method = m
		return nil
	}
}

// WithHeaders adds HTTP headers sent by the default fetcher.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	sitecheck.WithHeaders("Authorization", "Bearer token")
func WithHeaders(keyValues ...string) Option {
	return func(cfg *checkerConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string)
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithFetcher replaces the default HTTP fetcher.
//
// The fetcher is shared by every worker and must be safe for concurrent
// use. [WithMethod] and [WithHeaders] have no effect on a custom fetcher.
//
// Returns an error if f is nil.
func WithFetcher(f Fetcher) Option {
	return func(cfg *checkerConfig) error {
		if f == nil {
			return errors.New("fetcher cannot be nil")
		}
		cfg.fetcher = f
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Checker.
//
// If not specified, [slog.Default] is used. Returns an error if the logger
// is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *checkerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithOutcomeCallback registers a function called for every outcome as it
// arrives, before the run completes.
//
// Multiple callbacks may be registered; they execute in registration order.
// Callbacks are invoked synchronously from a single goroutine, so they need
// no locking of their own but must not block. Panics within callbacks are
// recovered and logged.
//
// Nil callbacks are silently ignored.
func WithOutcomeCallback(cb func(Outcome)) Option {
	return func(cfg *checkerConfig) error {
		if cb == nil {
			return nil
		}
		cfg.outcomeCallbacks = append(cfg.outcomeCallbacks, cb)
		return nil
	}
}

// WithMetrics registers probe metrics (counts, attempts, in-flight probes,
// durations) with reg.
//
// Returns an error if reg is nil.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cfg *checkerConfig) error {
		if reg == nil {
			return errors.New("metrics registerer cannot be nil")
		}
		cfg.registerer = reg
		return nil
	}
}

// WithTracerProvider records a span per run and per fetch attempt.
//
// Returns an error if tp is nil.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *checkerConfig) error {
		if tp == nil {
			return errors.New("tracer provider cannot be nil")
		}
		cfg.tracerProvider = tp
		return nil
	}
}
