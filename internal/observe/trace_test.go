package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans installs a synchronous in-memory tracer provider as the global
// one for the duration of the test.
func recordSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default slog logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStartSpan_RecognitionNestsUnderTurn(t *testing.T) {
	exp := recordSpans(t)

	turnCtx, turn := StartSpan(context.Background(), "interview.turn")
	_, recognise := StartSpan(turnCtx, "interview.stt")
	recognise.End()
	turn.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	stt, tr := spans[0], spans[1]
	if stt.Name != "interview.stt" || tr.Name != "interview.turn" {
		t.Fatalf("span names = %q, %q", stt.Name, tr.Name)
	}
	if stt.Parent.SpanID() != tr.SpanContext.SpanID() {
		t.Error("interview.stt is not a child of interview.turn")
	}
	if stt.SpanContext.TraceID() != tr.SpanContext.TraceID() {
		t.Error("turn and recognition spans are in different traces")
	}
	if got := tr.InstrumentationScope.Name; got != tracerName {
		t.Errorf("instrumentation scope = %q, want %q", got, tracerName)
	}
}

func TestCorrelationID(t *testing.T) {
	recordSpans(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without a span = %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "interview.turn")
	defer span.End()
	cid := CorrelationID(ctx)
	if cid != span.SpanContext().TraceID().String() {
		t.Errorf("CorrelationID = %q, want the turn's trace id", cid)
	}
	if strings.Trim(cid, "0123456789abcdef") != "" || len(cid) != 32 {
		t.Errorf("CorrelationID %q is not 32 hex characters", cid)
	}

	next, other := StartSpan(context.Background(), "interview.turn")
	defer other.End()
	if CorrelationID(next) == cid {
		t.Error("two root turns share a correlation id")
	}
}

func TestLogger_Fields(t *testing.T) {
	recordSpans(t)

	spanCtx, span := StartSpan(context.Background(), "interview.turn")
	defer span.End()

	tests := []struct {
		name string
		ctx  context.Context
		want []string
		not  []string
	}{
		{
			name: "bare",
			ctx:  context.Background(),
			not:  []string{"trace_id", "span_id", "interview_id"},
		},
		{
			name: "interview only",
			ctx:  WithInterviewID(context.Background(), "iv-42"),
			want: []string{"interview_id=iv-42"},
			not:  []string{"trace_id"},
		},
		{
			name: "turn span",
			ctx:  spanCtx,
			want: []string{"trace_id=" + span.SpanContext().TraceID().String(), "span_id="},
			not:  []string{"interview_id"},
		},
		{
			name: "turn span in interview",
			ctx:  WithInterviewID(spanCtx, "iv-7"),
			want: []string{"trace_id=", "span_id=", "interview_id=iv-7"},
		},
		{
			name: "empty interview id",
			ctx:  WithInterviewID(context.Background(), ""),
			not:  []string{"interview_id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			Logger(tt.ctx).Info("turn accepted")
			line := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("log line missing %q: %s", w, line)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(line, n) {
					t.Errorf("log line unexpectedly has %q: %s", n, line)
				}
			}
		})
	}
}
