package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/voxhire"

// Tracer returns the voxhire tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace ID of the span in ctx, or "" when there is
// none.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

type interviewKey struct{}

// WithInterviewID returns a context whose [Logger] tags every line with
// interview_id.
func WithInterviewID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, interviewKey{}, id)
}

// Logger returns the default logger enriched with trace_id and span_id from
// the active span and interview_id from [WithInterviewID], when present.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id, ok := ctx.Value(interviewKey{}).(string); ok && id != "" {
		l = l.With(slog.String("interview_id", id))
	}
	return l
}
