// Package tracing configures the OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Exporter names accepted by Setup.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// TracerName is the instrumentation name used for every span.
const TracerName = "github.com/zjrosen/noajax"

// ErrUnknownExporter is returned for exporter names Setup does not know.
var ErrUnknownExporter = errors.New("unknown trace exporter")

// Config selects and configures the exporter.
type Config struct {
	Exporter string
	// Endpoint is the OTLP gRPC collector address (host:port).
	Endpoint string
}

// Setup builds a tracer for cfg. The returned shutdown function flushes
// pending spans and must be called before exit.
func Setup(ctx context.Context, cfg Config) (trace.Tracer, func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case "", ExporterNone:
		return noop.NewTracerProvider().Tracer(TracerName), func(context.Context) error { return nil }, nil
	case ExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownExporter, cfg.Exporter)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s exporter: %w", cfg.Exporter, err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	return tp.Tracer(TracerName), tp.Shutdown, nil
}
