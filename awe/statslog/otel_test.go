package statslog

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOTelStatsLoggerLogCreatesSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	logger := NewOTelStatsLogger(tp.Tracer("test"))

	if err := logger.Log(Event{
		Iteration: 3,
		Msg:       "task_restart",
		Tag:       "out.tar|0|0.5|7",
		Phase:     "barrier",
		Meta:      map[string]any{"error": "task execution failure", "host": "worker-1"},
	}); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name != "task_restart" {
		t.Fatalf("span name = %q, want task_restart", span.Name)
	}

	attrs := make(map[attribute.Key]attribute.Value, len(span.Attributes))
	for _, a := range span.Attributes {
		attrs[a.Key] = a.Value
	}
	if got := attrs["iteration"].AsInt64(); got != 3 {
		t.Fatalf("iteration attribute = %d, want 3", got)
	}
	if got := attrs["tag"].AsString(); got != "out.tar|0|0.5|7" {
		t.Fatalf("tag attribute = %q, want out.tar|0|0.5|7", got)
	}
	if got := attrs["host"].AsString(); got != "worker-1" {
		t.Fatalf("host attribute = %q, want worker-1", got)
	}
	if span.Status.Code != codes.Error {
		t.Fatalf("span status = %v, want codes.Error", span.Status.Code)
	}
}

func TestOTelStatsLoggerCloseIsNoOp(t *testing.T) {
	logger := NewOTelStatsLogger(sdktrace.NewTracerProvider().Tracer("test"))
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
