// Package observe provides the observability primitives of the trainer:
// OpenTelemetry metrics, tracing, trace-aware structured logging and HTTP
// middleware for the local status server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping via the Prometheus exporter bridge installed by [InitProvider].
// [DefaultMetrics] uses the global meter provider; tests should build their
// own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every instrument.
const meterName = "github.com/MrWong99/consultorio"

// Metrics holds all metric instruments. The OTel instruments are safe for
// concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// RecordingDuration tracks how long the trainee spoke per accepted turn.
	RecordingDuration metric.Float64Histogram

	// UploadDuration tracks process-audio round trips (transcription,
	// classification and reply generation on the backend).
	UploadDuration metric.Float64Histogram

	// DownloadDuration tracks reply audio downloads.
	DownloadDuration metric.Float64Histogram

	// SynthesisDuration tracks synthesize-text round trips.
	SynthesisDuration metric.Float64Histogram

	// TurnDuration tracks a full turn, from end of recording until the
	// patient has finished replying.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// BackendRequests counts backend exchanges. Attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// BackendErrors counts failed exchanges. Attributes:
	//   attribute.String("op", ...), attribute.String("kind", ...)
	BackendErrors metric.Int64Counter

	// TurnFailures counts turns that did not reach the backend or whose reply
	// could not be played. Attributes:
	//   attribute.String("stage", ...), attribute.Bool("soft", ...)
	TurnFailures metric.Int64Counter

	// SessionOutcomes counts finished sessions. Attributes:
	//   attribute.String("outcome", ...), attribute.String("grade", ...)
	SessionOutcomes metric.Int64Counter

	// --- Gauges ---

	// StressLevel is the current patient stress level of the live session.
	StressLevel metric.Int64Gauge

	// BackendConnected is 1 while the simulation service answers health
	// checks and 0 otherwise.
	BackendConnected metric.Int64Gauge

	// ActiveSessions tracks running training sessions.
	ActiveSessions metric.Int64UpDownCounter

	// BridgeClients tracks connected WebSocket presentation clients.
	BridgeClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries (in seconds) sized for backend
// round trips that include transcription and speech synthesis.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// turnBuckets cover whole turns including playback.
var turnBuckets = []float64{
	1, 2.5, 5, 10, 15, 20, 30, 45, 60,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst     *metric.Float64Histogram
		name    string
		desc    string
		buckets []float64
	}{
		{&met.RecordingDuration, "consultorio.recording.duration", "Length of accepted user recordings.", turnBuckets},
		{&met.UploadDuration, "consultorio.upload.duration", "Latency of process-audio requests.", latencyBuckets},
		{&met.DownloadDuration, "consultorio.download.duration", "Latency of reply audio downloads.", latencyBuckets},
		{&met.SynthesisDuration, "consultorio.synthesis.duration", "Latency of synthesize-text requests.", latencyBuckets},
		{&met.TurnDuration, "consultorio.turn.duration", "Time from end of recording until the reply finished.", turnBuckets},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(h.buckets...),
		); err != nil {
			return nil, err
		}
	}

	// Counters.
	if met.BackendRequests, err = m.Int64Counter("consultorio.backend.requests",
		metric.WithDescription("Total backend requests by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("consultorio.backend.errors",
		metric.WithDescription("Total backend errors by operation and kind."),
	); err != nil {
		return nil, err
	}
	if met.TurnFailures, err = m.Int64Counter("consultorio.turn.failures",
		metric.WithDescription("Total failed turns by stage."),
	); err != nil {
		return nil, err
	}
	if met.SessionOutcomes, err = m.Int64Counter("consultorio.session.outcomes",
		metric.WithDescription("Total finished sessions by outcome and grade."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.StressLevel, err = m.Int64Gauge("consultorio.stress_level",
		metric.WithDescription("Current patient stress level (0-10)."),
	); err != nil {
		return nil, err
	}
	if met.BackendConnected, err = m.Int64Gauge("consultorio.backend.connected",
		metric.WithDescription("Whether the simulation service is reachable (1) or not (0)."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("consultorio.active_sessions",
		metric.WithDescription("Number of running training sessions."),
	); err != nil {
		return nil, err
	}
	if met.BridgeClients, err = m.Int64UpDownCounter("consultorio.bridge.clients",
		metric.WithDescription("Number of connected presentation clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("consultorio.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordBackendRequest records one backend exchange. status is "ok" or
// "error".
func (m *Metrics) RecordBackendRequest(ctx context.Context, op, status string) {
	m.BackendRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordBackendError records a failed exchange classified by kind
// ("network", "deserialization", "http", "circuit_open", ...).
func (m *Metrics) RecordBackendError(ctx context.Context, op, kind string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("kind", kind),
		),
	)
}

// RecordTurnFailure records a failed turn.
func (m *Metrics) RecordTurnFailure(ctx context.Context, stage string, soft bool) {
	m.TurnFailures.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.Bool("soft", soft),
		),
	)
}

// RecordSessionOutcome records a finished session.
func (m *Metrics) RecordSessionOutcome(ctx context.Context, success bool, grade string) {
	outcome := "failed"
	if success {
		outcome = "completed"
	}
	m.SessionOutcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("grade", grade),
		),
	)
}

// SetBackendConnected records the outcome of the latest connectivity change.
func (m *Metrics) SetBackendConnected(connected bool) {
	var v int64
	if connected {
		v = 1
	}
	m.BackendConnected.Record(context.Background(), v)
}
