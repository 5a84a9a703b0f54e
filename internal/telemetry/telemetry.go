// Package telemetry exports probe attempts as OpenTelemetry traces.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jpalmerr/sitecheck/internal/probe"
)

// TracerName identifies spans created by sitecheck.
const TracerName = "github.com/jpalmerr/sitecheck"

const (
	defaultServiceName     = "sitecheck"
	defaultShutdownTimeout = 5 * time.Second
)

// Options configures the OTLP trace exporter.
type Options struct {
	// Endpoint is the OTLP gRPC endpoint (e.g. "localhost:4317"). Required.
	Endpoint string

	// Insecure disables TLS towards the collector.
	Insecure bool

	// ServiceName defaults to "sitecheck".
	ServiceName string

	// ServiceVersion is recorded on the resource when set.
	ServiceVersion string

	// SampleRatio is the fraction of runs traced, in (0, 1]. Zero means 1.
	SampleRatio float64

	// Headers are sent with every export request.
	Headers map[string]string
}

// NewTracerProvider builds a batching tracer provider exporting over OTLP/gRPC.
//
// The exporter connects lazily; an unreachable collector does not block or
// fail probing. Call [Shutdown] to flush pending spans.
func NewTracerProvider(ctx context.Context, opts Options) (*sdktrace.TracerProvider, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("otlp endpoint is required")
	}
	if opts.ServiceName == "" {
		opts.ServiceName = defaultServiceName
	}
	if opts.SampleRatio <= 0 || opts.SampleRatio > 1 {
		opts.SampleRatio = 1
	}

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(opts.Endpoint),
	}
	if opts.Insecure {
		exporterOpts = append(exporterOpts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	if len(opts.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(opts.Headers))
	}

	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(opts.ServiceName)}
	if opts.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(opts.ServiceVersion))
	}
	res := resource.NewWithAttributes(semconv.SchemaURL, attrs...)

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
	), nil
}

// Shutdown flushes and stops tp, giving up after five seconds.
func Shutdown(tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	return tp.Shutdown(ctx)
}

// Fetcher wraps next so every attempt is recorded as a client span.
func Fetcher(next probe.Fetcher, tracer trace.Tracer) probe.Fetcher {
	return probe.FetcherFunc(func(ctx context.Context, target string, timeout time.Duration) (int, error) {
		ctx, span := tracer.Start(ctx, "probe.attempt",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("url.full", target),
				attribute.Int64("sitecheck.timeout_ms", timeout.Milliseconds()),
			),
		)
		defer span.End()

		code, err := next.Fetch(ctx, target, timeout)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return code, err
		}

		span.SetAttributes(attribute.Int("http.response.status_code", code))
		return code, nil
	})
}
