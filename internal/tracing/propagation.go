package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToChild derives the context of a nested agent run. The trace ID is kept, a new run
// ID is generated, and the memory ID is dropped because a child keeps its own conversation.
func PropagateToChild(ctx context.Context, childAgentID string) context.Context {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = NewTraceID()
	}

	child := WithTraceID(ctx, traceID)
	child = WithRunID(child, NewRunID())
	child = WithAgentID(child, childAgentID)
	return WithMemoryID(child, "")
}

// LoggerFromContext adds tracing fields from ctx to a zerolog logger
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	c := logger.With()
	if tc.TraceID != "" {
		c = c.Str("trace_id", tc.TraceID)
	}
	if tc.RunID != "" {
		c = c.Str("run_id", tc.RunID)
	}
	if tc.AgentID != "" {
		c = c.Str("agent_id", tc.AgentID)
	}
	if tc.MemoryID != "" {
		c = c.Str("memory_id", tc.MemoryID)
	}
	return c.Logger()
}

// Detach copies tracing values onto a fresh background context. Teardown uses it so that
// cleanup still runs after the caller's context is cancelled.
func Detach(ctx context.Context) context.Context {
	return NewContext(context.Background(), FromContext(ctx))
}
