package tracing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewRunContext(t *testing.T) {
	ctx := NewRunContext(context.Background(), "agent-1")

	if GetTraceID(ctx) == "" {
		t.Error("trace ID not generated")
	}
	if GetRunID(ctx) == "" {
		t.Error("run ID not generated")
	}
	if GetAgentID(ctx) != "agent-1" {
		t.Errorf("expected agent-1, got %s", GetAgentID(ctx))
	}

	again := NewRunContext(ctx, "agent-1")
	if GetTraceID(again) != GetTraceID(ctx) {
		t.Error("existing trace ID should be kept")
	}
	if GetRunID(again) == GetRunID(ctx) {
		t.Error("each run should get its own run ID")
	}
}

func TestPropagateToChild(t *testing.T) {
	parent := NewContext(context.Background(), &TraceContext{
		TraceID:  "trace-123",
		RunID:    "run-parent",
		AgentID:  "parent",
		MemoryID: "mem-1",
	})

	child := PropagateToChild(parent, "child")

	if GetTraceID(child) != "trace-123" {
		t.Error("trace ID not propagated")
	}
	if GetRunID(child) == "run-parent" || GetRunID(child) == "" {
		t.Error("child should get a new run ID")
	}
	if GetAgentID(child) != "child" {
		t.Error("agent ID not updated")
	}
	if GetMemoryID(child) != "" {
		t.Error("memory ID should not leak into child runs")
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := NewContext(context.Background(), &TraceContext{TraceID: "t1", RunID: "r1", MemoryID: "m1"})
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"trace_id":"t1"`, `"run_id":"r1"`, `"memory_id":"m1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
	if strings.Contains(out, "agent_id") {
		t.Error("empty fields should be omitted")
	}
}

func TestDetach(t *testing.T) {
	ctx, cancel := context.WithCancel(WithRunID(context.Background(), "r1"))
	cancel()

	detached := Detach(ctx)
	if detached.Err() != nil {
		t.Error("detached context should not be cancelled")
	}
	if GetRunID(detached) != "r1" {
		t.Error("run ID not copied")
	}
}

func TestStartAndEndSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	ctx, span := StartSpan(context.Background(), "agentrun.test", "test.op")
	if GetTraceID(ctx) == "" {
		t.Error("span trace ID not stored in context")
	}
	EndSpan(span, errors.New("boom"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status().Code)
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected recorded error event")
	}
}

func TestLogExporter(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewLogExporter(zerolog.New(&buf).Level(zerolog.DebugLevel))
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	tracer := tp.Tracer("agentrun.test")
	ctx, parent := tracer.Start(context.Background(), "agent.invoke")
	_, child := tracer.Start(ctx, "agent.tool")
	child.SetStatus(codes.Error, "tool failed")
	child.End()
	parent.End()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 span events, got %d: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"span":"agent.tool"`) || !strings.Contains(lines[0], `"parent_span_id"`) {
		t.Errorf("unexpected child span event: %s", lines[0])
	}
	if !strings.Contains(lines[0], `"error":"tool failed"`) {
		t.Errorf("expected error description: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"span":"agent.invoke"`) || strings.Contains(lines[1], "parent_span_id") {
		t.Errorf("unexpected parent span event: %s", lines[1])
	}
}
