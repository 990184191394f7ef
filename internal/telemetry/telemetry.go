// Package telemetry configures the OpenTelemetry tracer provider used by the HTTP
// middleware, the outbound fetch client and the aggregation services.
package telemetry

import (
	"context"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultServiceName is reported on every span when no name is configured.
const DefaultServiceName = "cveintel"

// Options tunes InitTracer.
type Options struct {
	ServiceName string
	PrettyPrint bool
	// Writer receives exported spans. Defaults to stdout.
	Writer io.Writer
}

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Noop is returned when tracing is disabled.
func Noop(context.Context) error { return nil }

// InitTracer registers a batching tracer provider that exports to a stdout writer and
// installs the W3C trace context propagator.
func InitTracer(opts Options) (ShutdownFunc, error) {
	exporterOpts := []stdouttrace.Option{}
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}
	exporterOpts = append(exporterOpts, stdouttrace.WithWriter(writer))
	if opts.PrettyPrint {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}

	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(opts.ServiceName)
	if name == "" {
		name = DefaultServiceName
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(attribute.String("service.name", name)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
