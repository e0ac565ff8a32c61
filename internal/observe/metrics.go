// Package observe provides the observability primitives shared by the
// practice service: OpenTelemetry metrics, tracing, context-aware structured
// logging, and HTTP middleware tying them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported in
// Prometheus format by [InitProvider]. A package-level [DefaultMetrics]
// instance backs production code; tests should construct their own with
// [NewMetrics] and a manual reader to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every cantomaster instrument.
const meterName = "github.com/MrWong99/cantomaster"

// Metrics holds the metric instruments for the application. All fields are
// safe for concurrent use.
type Metrics struct {
	// SynthesisDuration tracks how long a spoken rendition took from request
	// to completion. Attributes: outcome ("done", "superseded", "error").
	SynthesisDuration metric.Float64Histogram

	// CaptureDuration tracks capture sessions from start to end.
	CaptureDuration metric.Float64Histogram

	// Scores records every computed pronunciation score (0–100).
	Scores metric.Int64Histogram

	// CaptureSessions counts capture sessions by outcome. Attributes:
	//   attribute.String("outcome", "transcript" | "empty" | "cancelled" | "error")
	//   attribute.Bool("audio", ...)
	CaptureSessions metric.Int64Counter

	// ProviderRequests counts STT/TTS provider calls. Attributes: provider,
	// kind, status.
	ProviderRequests metric.Int64Counter

	// ActiveCaptures tracks capture sessions between Listen and session end.
	ActiveCaptures metric.Int64UpDownCounter

	// ActiveConnections tracks open practice websocket connections.
	ActiveConnections metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time by method and
	// path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Speech sessions run
// for seconds rather than milliseconds, so the upper range is wide.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// scoreBuckets split the 0–100 range along the feedback bands.
var scoreBuckets = []float64{0, 25, 50, 70, 90, 100}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SynthesisDuration, err = m.Float64Histogram("cantomaster.synthesis.duration",
		metric.WithDescription("Duration of spoken renditions from request to completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CaptureDuration, err = m.Float64Histogram("cantomaster.capture.duration",
		metric.WithDescription("Duration of capture sessions from listen to session end."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Scores, err = m.Int64Histogram("cantomaster.score",
		metric.WithDescription("Pronunciation scores awarded."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	if met.CaptureSessions, err = m.Int64Counter("cantomaster.capture.sessions",
		metric.WithDescription("Completed capture sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("cantomaster.provider.requests",
		metric.WithDescription("Speech provider requests by provider, kind and status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveCaptures, err = m.Int64UpDownCounter("cantomaster.active_captures",
		metric.WithDescription("Number of capture sessions in progress."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConnections, err = m.Int64UpDownCounter("cantomaster.active_connections",
		metric.WithDescription("Number of open practice connections."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("cantomaster.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance built from
// [otel.GetMeterProvider] on first use. Panics if instrument creation fails.
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

// RecordScore records one awarded score.
func (m *Metrics) RecordScore(ctx context.Context, score int) {
	m.Scores.Record(ctx, int64(score))
}

// RecordCapture records the end of a capture session.
func (m *Metrics) RecordCapture(ctx context.Context, outcome string, audio bool, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("audio", audio),
	)
	m.CaptureSessions.Add(ctx, 1, attrs)
	m.CaptureDuration.Record(ctx, seconds, attrs)
}

// RecordSynthesis records the end of one spoken rendition.
func (m *Metrics) RecordSynthesis(ctx context.Context, outcome string, seconds float64) {
	m.SynthesisDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordProviderRequest records one speech provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}
