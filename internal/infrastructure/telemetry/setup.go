package telemetry

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// InitTracer installs a global tracer provider that writes spans as JSON to w.
// The returned function flushes and stops it. A nil w keeps the default
// no-op provider.
func InitTracer(ctx context.Context, serviceName string, w io.Writer, logger *slog.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if w == nil {
		return noop
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		logger.Error("telemetry exporter init failed", "err", err)
		return noop
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)
	otel.SetTracerProvider(provider)
	logger.Info("tracing enabled", "service", serviceName)

	return provider.Shutdown
}
