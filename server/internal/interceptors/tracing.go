package interceptors

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitTracer installs a global tracer provider that exports spans as JSON to w. Spans are sampled at sampleRatio
// unless the caller's span was already sampled. The returned func flushes pending spans.
func InitTracer(appName string, w io.Writer, sampleRatio float64) (func(context.Context) error, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}

	tp, err := NewTracerProvider(appName, exp, sampleRatio)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func NewTracerProvider(appName string, exp sdktrace.SpanExporter, sampleRatio float64) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(appName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("merge trace resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(r),
	), nil
}
