// Package observe provides the observability primitives for voxhire:
// OpenTelemetry metrics, tracing, trace-aware structured logging and the HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping through the Prometheus exporter set up by [InitProvider]. Tests
// should build their own [Metrics] with [NewMetrics] and an SDK meter provider
// backed by a manual reader, so they do not share state.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxhire metrics.
const meterName = "github.com/MrWong99/voxhire"

// Provider request outcomes recorded by [Metrics.RecordProviderRequest].
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Metrics holds every OpenTelemetry instrument used by the application. The
// instruments are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	STTDuration metric.Float64Histogram
	LLMDuration metric.Float64Histogram
	TTSDuration metric.Float64Histogram

	// TurnDuration spans from an accepted candidate turn to the interviewer
	// finishing its reply.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider calls with attributes provider, kind
	// and status.
	ProviderRequests metric.Int64Counter

	// Turns counts processed candidate turns with attribute source
	// (audio or text).
	Turns metric.Int64Counter

	// TurnRejections counts turns dropped before the LLM with attribute
	// reason (too_short, empty_transcript, stt_error, busy, fallback).
	TurnRejections metric.Int64Counter

	// FallbackReplies counts deterministic replies used instead of the LLM.
	FallbackReplies metric.Int64Counter

	// STTEscalations counts switches to browser speech recognition with
	// attribute reason.
	STTEscalations metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live interview sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveConnections tracks connected websocket clients with attribute
	// role.
	ActiveConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks request time with attributes method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, sized for provider
// calls that range from tens of milliseconds to the generation timeout.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 12, 20,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "voxhire.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "voxhire.llm.duration", "Latency of interviewer reply generation."},
		{&met.TTSDuration, "voxhire.tts.duration", "Time from synthesis start to the last audio chunk."},
		{&met.TurnDuration, "voxhire.turn.duration", "Time from an accepted candidate turn to the end of the interviewer reply."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "voxhire.provider.requests", "Provider calls by provider, kind and status."},
		{&met.Turns, "voxhire.turns", "Candidate turns handed to the dialogue processor."},
		{&met.TurnRejections, "voxhire.turn_rejections", "Candidate turns dropped before reply generation."},
		{&met.FallbackReplies, "voxhire.fallback_replies", "Deterministic interviewer replies used instead of the LLM."},
		{&met.STTEscalations, "voxhire.stt.escalations", "Switches to browser speech recognition."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voxhire.active_sessions",
		metric.WithDescription("Number of live interview sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConnections, err = m.Int64UpDownCounter("voxhire.active_connections",
		metric.WithDescription("Number of connected websocket clients."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxhire.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first use
// from [otel.GetMeterProvider]. Panics if instrument creation fails, which
// does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one provider call and records its latency in
// the histogram for kind ("stt", "llm" or "tts").
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string, d time.Duration) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
	attrs := metric.WithAttributes(attribute.String("status", status))
	switch kind {
	case "stt":
		m.STTDuration.Record(ctx, d.Seconds(), attrs)
	case "llm":
		m.LLMDuration.Record(ctx, d.Seconds(), attrs)
	case "tts":
		m.TTSDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordTurn counts a candidate turn entering the dialogue processor.
func (m *Metrics) RecordTurn(ctx context.Context, source string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordTurnRejection counts a dropped candidate turn.
func (m *Metrics) RecordTurnRejection(ctx context.Context, reason string) {
	m.TurnRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordFallbackReply counts a deterministic reply. reason is "timeout",
// "error" or "empty".
func (m *Metrics) RecordFallbackReply(ctx context.Context, reason string) {
	m.FallbackReplies.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordEscalation counts a switch to browser speech recognition.
func (m *Metrics) RecordEscalation(ctx context.Context, reason string) {
	m.STTEscalations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
