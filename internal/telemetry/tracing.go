// Package telemetry installs the OpenTelemetry tracer provider used by crawl
// runs. Spans propagate into Pub/Sub message attributes.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// ServiceName identifies the crawler in trace resources.
const ServiceName = "pharma-listing-crawler"

// Exporter names accepted by ExporterOptions.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// ExporterOptions returns the provider options that ship finished spans to
// the named exporter. Stdout spans are batched and written to w as JSON.
func ExporterOptions(name string, w io.Writer) ([]sdktrace.TracerProviderOption, error) {
	switch name {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		return []sdktrace.TracerProviderOption{sdktrace.WithBatcher(exp)}, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", name)
	}
}

// InitTracerProvider builds a tracer provider for serviceName and installs it
// globally together with the W3C trace-context propagator. Exporters or span
// processors are passed through opts; without them spans are sampled but
// never leave the process.
func InitTracerProvider(ctx context.Context, serviceName string, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	if serviceName == "" {
		serviceName = ServiceName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
