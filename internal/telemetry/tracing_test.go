package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

func TestInitTracerProviderRecordsSpans(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()

	tp, err := InitTracerProvider(ctx, "", sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	_, span := otel.Tracer("test").Start(ctx, "crawler.letter")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "crawler.letter", ended[0].Name())
	assert.Contains(t, ended[0].Resource().Attributes(), semconv.ServiceName(ServiceName))
}

func TestInitTracerProviderInstallsPropagator(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracerProvider(ctx, "crawler-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	spanCtx, span := tp.Tracer("test").Start(ctx, "publish")
	defer span.End()

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(spanCtx, carrier)
	assert.NotEmpty(t, carrier.Get("traceparent"))
}

func TestExporterOptionsStdoutWritesSpans(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	opts, err := ExporterOptions(ExporterStdout, &buf)
	require.NoError(t, err)
	require.Len(t, opts, 1)

	tp, err := InitTracerProvider(ctx, "", opts...)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(ctx, "crawler.run")
	span.End()
	require.NoError(t, tp.Shutdown(ctx))

	assert.Contains(t, buf.String(), `"Name":"crawler.run"`)
	assert.Contains(t, buf.String(), ServiceName)
}

func TestExporterOptionsNone(t *testing.T) {
	for _, name := range []string{"", ExporterNone} {
		opts, err := ExporterOptions(name, nil)
		require.NoError(t, err)
		assert.Empty(t, opts)
	}

	_, err := ExporterOptions("zipkin", nil)
	require.Error(t, err)
}
