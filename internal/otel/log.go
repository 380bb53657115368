package otel

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// TraceContextFrom extracts the trace and span IDs from the span in ctx.
// Both are empty when tracing is disabled or no span is recording.
func TraceContextFrom(ctx context.Context) (traceID, spanID string) {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return "", ""
	}
	return span.SpanContext().TraceID().String(), span.SpanContext().SpanID().String()
}

// LogTraceFields returns a zerolog Func hook stamping trace_id and span_id
// on the event when a span is active, so a cycle's log lines can be joined
// to its trace:
//
//	log.Info().Str("agent_id", id).Func(otel.LogTraceFields(ctx)).Msg("cycle_finished")
//
// The fields are omitted entirely when tracing is off.
func LogTraceFields(ctx context.Context) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		traceID, spanID := TraceContextFrom(ctx)
		if traceID != "" {
			e.Str("trace_id", traceID)
		}
		if spanID != "" {
			e.Str("span_id", spanID)
		}
	}
}
