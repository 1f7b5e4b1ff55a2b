// Package tracing provides the engine's span export: a real OTLP/HTTP
// exporter when an endpoint is configured, a no-op provider otherwise.
// The env-gated factory pattern (no-op unless an OTLP endpoint env var
// is set) is grounded on
// jinterlante1206-AleutianLocal/cmd/aleutian/internal/diagnostics/tracer.go's
// NewDefaultDiagnosticsTracer.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider wraps a trace.Tracer plus the shutdown hook needed to flush
// on graceful exit.
type Provider struct {
	tracer   trace.Tracer
	sdk      *sdktrace.TracerProvider // nil in no-op mode
}

// New builds a Provider. When endpoint is empty, spans are created but
// never exported (a real tracer.Tracer backed by the no-op SDK
// provider), so callers never need to branch on whether tracing is
// enabled.
func New(ctx context.Context, serviceName, endpoint string) (*Provider, error) {
	if endpoint == "" {
		return &Provider{tracer: otel.Tracer(serviceName)}, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
	))
	if err != nil {
		return nil, err
	}

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(sdk)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return &Provider{tracer: sdk.Tracer(serviceName), sdk: sdk}, nil
}

// Start begins a span, honoring any trace context already present on
// ctx (e.g. from an incoming traceparent header per spec §4.8).
func (p *Provider) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// End finishes a span, recording err if non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Shutdown flushes and stops the exporter. A no-op in no-op mode.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.sdk.Shutdown(shutdownCtx)
}
