package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		otel.SetTextMapPropagator(prevProp)
	})

	var buf bytes.Buffer
	shutdown, err := InitTracer(Options{ServiceName: "cveintel-test", Writer: &buf})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry_test").Start(context.Background(), "assessment")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), `"Name":"assessment"`)
	require.Contains(t, buf.String(), "cveintel-test")
	require.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestNoop(t *testing.T) {
	require.NoError(t, Noop(context.Background()))
}
