// Package observability provides logging, metrics, and tracing.
//
// Metrics cover credential rotation (selections, demotions, resets, pool
// availability) and upstream attempts; tracing wraps inbound requests and the
// outbound calls to the video and generation APIs.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/fairyhunter13/recipe-extractor/internal/config"
)

// SetupTracing configures OTEL tracing if endpoint provided. Returns shutdown func.
func SetupTracing(cfg config.Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	if cfg.OTLPEndpoint == "" {
		slog.Info("OTLP endpoint not set; tracing disabled")
		return nil, nil
	}

	exporter, err := otlptracegrpc.New(context.Background(), otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("op=observability.SetupTracing: %w", err)
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.OTELServiceName),
		semconv.DeploymentEnvironmentKey.String(cfg.AppEnv),
	))
	if err != nil {
		return nil, fmt.Errorf("op=observability.SetupTracing: %w", err)
	}

	// Production samples 10%; everything else traces every request.
	samplingRatio := 1.0
	if cfg.IsProd() {
		samplingRatio = 0.1
	}
	slog.Info("tracing configured",
		slog.String("endpoint", cfg.OTLPEndpoint),
		slog.Float64("sampling_ratio", samplingRatio))

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(samplingRatio))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// HTTPTransport wraps base with client spans named after the upstream.
// Query parameters named in redact are removed from the URL the tracer
// records and restored before the request reaches base.
func HTTPTransport(upstream string, base http.RoundTripper, redact ...string) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("%s %s %s", upstream, r.Method, r.URL.Path)
		}),
	}
	if len(redact) == 0 {
		return otelhttp.NewTransport(base, opts...)
	}
	return &stripParams{
		params: redact,
		next:   otelhttp.NewTransport(&restoreParams{next: base}, opts...),
	}
}

type rawQueryKey struct{}

type stripParams struct {
	params []string
	next   http.RoundTripper
}

func (t *stripParams) RoundTrip(r *http.Request) (*http.Response, error) {
	q := r.URL.Query()
	found := false
	for _, p := range t.params {
		if q.Has(p) {
			q.Del(p)
			found = true
		}
	}
	if !found {
		return t.next.RoundTrip(r)
	}
	r2 := r.Clone(context.WithValue(r.Context(), rawQueryKey{}, r.URL.RawQuery))
	r2.URL.RawQuery = q.Encode()
	return t.next.RoundTrip(r2)
}

type restoreParams struct {
	next http.RoundTripper
}

func (t *restoreParams) RoundTrip(r *http.Request) (*http.Response, error) {
	raw, ok := r.Context().Value(rawQueryKey{}).(string)
	if !ok {
		return t.next.RoundTrip(r)
	}
	r2 := r.Clone(r.Context())
	r2.URL.RawQuery = raw
	return t.next.RoundTrip(r2)
}
