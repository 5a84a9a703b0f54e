package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxDrainSize caps how much of a response body is read before closing it.
const maxDrainSize = 1 << 20 // 1MB

// connection pooling limits to prevent resource exhaustion when probing many targets
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// DefaultUserAgent is sent when no User-Agent header is configured.
const DefaultUserAgent = "sitecheck"

// TimeoutError reports that a single attempt exceeded its timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s", e.Timeout)
}

// Unwrap lets callers match the error with errors.Is(err, context.DeadlineExceeded).
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// HTTPFetcher performs one HTTP request per call.
//
// HTTPFetcher uses per-request timeouts via context rather than a global
// client timeout, so the caller decides the timeout of every attempt. Any
// response counts as an answer: the status code is returned whatever its
// value. The response body is drained (up to 1MB) and discarded so the
// connection can be reused.
//
// An HTTPFetcher is safe for concurrent use by multiple goroutines.
type HTTPFetcher struct {
	httpClient      *http.Client
	method          string
	headers         map[string]string
	maxConnsPerHost int
	transport       http.RoundTripper
}

// Option configures an [HTTPFetcher].
type Option func(*HTTPFetcher)

// WithMethod sets the HTTP method. Empty defaults to GET.
func WithMethod(method string) Option {
	return func(f *HTTPFetcher) {
		f.method = method
	}
}

// WithHeaders sets headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(f *HTTPFetcher) {
		f.headers = make(map[string]string, len(headers))
		for k, v := range headers {
			f.headers[k] = v
		}
	}
}

// WithMaxConnsPerHost bounds concurrent connections to a single host.
// Zero or less keeps the default of 10.
func WithMaxConnsPerHost(n int) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxConnsPerHost = n
		}
	}
}

// WithTransport replaces the pooled transport, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *HTTPFetcher) {
		f.transport = rt
	}
}

// New creates an [HTTPFetcher].
//
// Connection pooling configuration:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 unless raised with [WithMaxConnsPerHost]
//   - IdleConnTimeout: 60 seconds before closing idle connections
func New(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		method:          http.MethodGet,
		maxConnsPerHost: defaultMaxConnsPerHost,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.method == "" {
		f.method = http.MethodGet
	}

	transport := f.transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			MaxConnsPerHost:     f.maxConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
		}
	}

	// no default timeout - we use per-request timeouts via context
	f.httpClient = &http.Client{Transport: transport}
	return f
}

// Fetch performs a single request against target and returns its status code.
//
// A timeout of zero or less means no per-attempt deadline beyond ctx.
// Errors are returned as:
//   - [*TimeoutError] when the attempt's own deadline expired
//   - "request cancelled: ..." when ctx itself was done
//   - "request failed: ..." for any other transport failure
func (f *HTTPFetcher) Fetch(ctx context.Context, target string, timeout time.Duration) (int, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, f.method, target, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range f.headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", DefaultUserAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("request cancelled: %w", ctxErr)
		}
		if timeout > 0 && errors.Is(err, context.DeadlineExceeded) {
			return 0, &TimeoutError{Timeout: timeout}
		}
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// drain so the connection returns to the pool; the body itself is not used
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize))

	return resp.StatusCode, nil
}

// Close closes all idle connections in the fetcher's connection pool.
//
// Safe to call multiple times. After Close, the fetcher remains usable but
// new connections will be established as needed.
func (f *HTTPFetcher) Close() {
	if f == nil || f.httpClient == nil {
		return
	}
	if transport, ok := f.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
