package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/sitecheck/internal/probe"
)

const namespace = "sitecheck"

// Recorder exposes probe activity as Prometheus metrics.
//
// Recorder implements dispatch.Observer and can wrap a [probe.Fetcher] to
// count individual attempts. All methods are safe for concurrent use.
type Recorder struct {
	probesTotal   *prometheus.CounterVec
	attemptsTotal *prometheus.CounterVec
	panicsTotal   prometheus.Counter
	inFlight      prometheus.Gauge
	probeDuration *prometheus.HistogramVec
}

// NewRecorder creates a [Recorder] and registers its collectors with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Total number of targets probed, by final result.",
			},
			[]string{"result"},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Total number of fetch attempts, by HTTP status class or error.",
			},
			[]string{"code"},
		),
		panicsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_panics_total",
				Help:      "Total number of probes that panicked and produced no outcome.",
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "probes_in_flight",
				Help:      "Number of probes currently running.",
			},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Probe duration including retries and delays.",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"result"},
		),
	}

	collectors := []prometheus.Collector{
		r.probesTotal,
		r.attemptsTotal,
		r.panicsTotal,
		r.inFlight,
		r.probeDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return r, nil
}

// ProbeStarted increments the in-flight gauge.
func (r *Recorder) ProbeStarted(string) {
	r.inFlight.Inc()
}

// ProbeFinished records the outcome and decrements the in-flight gauge.
func (r *Recorder) ProbeFinished(o probe.Outcome) {
	r.inFlight.Dec()

	result := resultLabel(o.Err)
	r.probesTotal.WithLabelValues(result).Inc()
	r.probeDuration.WithLabelValues(result).Observe(o.Elapsed.Seconds())
}

// ProbePanicked counts the panic and decrements the in-flight gauge.
func (r *Recorder) ProbePanicked(string) {
	r.inFlight.Dec()
	r.panicsTotal.Inc()
}

// Fetcher wraps next so every attempt is counted.
func (r *Recorder) Fetcher(next probe.Fetcher) probe.Fetcher {
	return probe.FetcherFunc(func(ctx context.Context, target string, timeout time.Duration) (int, error) {
		code, err := next.Fetch(ctx, target, timeout)
		r.attemptsTotal.WithLabelValues(codeLabel(code, err)).Inc()
		return code, err
	})
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// codeLabel collapses status codes into classes to keep cardinality bounded.
func codeLabel(code int, err error) string {
	if err != nil {
		return "error"
	}
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
