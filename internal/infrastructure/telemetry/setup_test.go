package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracerExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	shutdown := InitTracer(context.Background(), "fixifox-test", &buf, logger)

	_, span := otel.Tracer("test").Start(context.Background(), "orchestration.run")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	if !strings.Contains(buf.String(), "orchestration.run") {
		t.Errorf("exported spans = %q, want orchestration.run", buf.String())
	}
}

func TestInitTracerDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	shutdown := InitTracer(context.Background(), "fixifox-test", nil, logger)
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}
