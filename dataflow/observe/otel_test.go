package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{})
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestOTelEmitterAnnotatesStandardAttributes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(tp.Tracer("test"))
	emitter.Emit(Event{
		RunID:  "run-1",
		Seq:    7,
		NodeID: "nodeA",
		Msg:    "item_emitted",
		Meta:   map[string]any{"elapsed_ms": int64(42)},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "item_emitted" {
		t.Errorf("span name = %q, want %q", span.Name, "item_emitted")
	}

	attrs := attributeMap(span.Attributes)
	if attrs["dataflow.run_id"] != "run-1" {
		t.Errorf("run_id = %v", attrs["dataflow.run_id"])
	}
	if attrs["dataflow.seq"] != int64(7) {
		t.Errorf("seq = %v", attrs["dataflow.seq"])
	}
	if attrs["dataflow.node_id"] != "nodeA" {
		t.Errorf("node_id = %v", attrs["dataflow.node_id"])
	}
	if attrs["dataflow.elapsed_ms"] != int64(42) {
		t.Errorf("elapsed_ms = %v", attrs["dataflow.elapsed_ms"])
	}
}

func TestOTelEmitterMarksErrorStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(tp.Tracer("test"))
	emitter.Emit(Event{Msg: "node_failed", Meta: map[string]any{"error": "boom"}})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status.Code)
	}
}

func TestOTelEmitterEmitBatch(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(tp.Tracer("test"))
	events := []Event{{Msg: "a"}, {Msg: "b"}, {Msg: "c"}}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(exporter.GetSpans()); got != 3 {
		t.Fatalf("expected 3 spans, got %d", got)
	}
}

func TestOTelEmitterFlushForceFlushesProvider(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	otel.SetTracerProvider(tp)

	emitter := NewOTelEmitter(tp.Tracer("test"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := emitter.Flush(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
