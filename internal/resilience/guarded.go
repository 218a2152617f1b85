package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/consultorio/internal/observe"
	"github.com/MrWong99/consultorio/pkg/backend"
)

// Backend operation names used for spans and metric attributes.
const (
	OpStartSession   = "start_session"
	OpProcessAudio   = "process_audio"
	OpSynthesizeText = "synthesize_text"
	OpDownloadAudio  = "download_audio"
	OpHealth         = "health"
)

var _ backend.API = (*GuardedBackend)(nil)

// IsBackendFailure reports whether err means the simulation service is
// unreachable or unwell: transport failures and temporary HTTP statuses.
// Client errors (4xx) and cancellations leave the breaker alone.
func IsBackendFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, backend.ErrNetwork) {
		return true
	}
	var be *backend.BackendError
	if errors.As(err, &be) {
		return be.Temporary()
	}
	return false
}

// ErrorKind classifies a backend error for the "kind" metric attribute.
func ErrorKind(err error) string {
	var be *backend.BackendError
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, backend.ErrNetwork):
		return "network"
	case errors.Is(err, backend.ErrDeserialization):
		return "deserialization"
	case errors.As(err, &be):
		return "http"
	default:
		return "other"
	}
}

// GuardedBackend decorates a [backend.API] with a circuit breaker, a span per
// exchange and request metrics. While the breaker is open every exchange
// fails immediately with an error wrapping [ErrCircuitOpen]. A successful
// health check closes the breaker.
type GuardedBackend struct {
	api     backend.API
	breaker *CircuitBreaker
	metrics *observe.Metrics
}

// NewGuardedBackend wraps api. When cfg.IsFailure is nil, [IsBackendFailure]
// is used. m may be nil, in which case [observe.DefaultMetrics] is used.
func NewGuardedBackend(api backend.API, cfg CircuitBreakerConfig, m *observe.Metrics) *GuardedBackend {
	if cfg.Name == "" {
		cfg.Name = "backend"
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = IsBackendFailure
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &GuardedBackend{
		api:     api,
		breaker: NewCircuitBreaker(cfg),
		metrics: m,
	}
}

// Breaker exposes the underlying breaker for status reporting.
func (g *GuardedBackend) Breaker() *CircuitBreaker {
	return g.breaker
}

// HealthCheck implements [backend.API]. The check bypasses the breaker; a
// healthy result resets it.
func (g *GuardedBackend) HealthCheck(ctx context.Context) bool {
	ok := g.api.HealthCheck(ctx)
	status := "ok"
	if !ok {
		status = "error"
	}
	g.metrics.RecordBackendRequest(ctx, OpHealth, status)
	if ok && g.breaker.State() != StateClosed {
		g.breaker.Reset()
	}
	return ok
}

// StartSession implements [backend.API].
func (g *GuardedBackend) StartSession(ctx context.Context) (*backend.SessionStart, error) {
	return guard(ctx, g, OpStartSession, nil, func(ctx context.Context) (*backend.SessionStart, error) {
		return g.api.StartSession(ctx)
	})
}

// ProcessAudio implements [backend.API].
func (g *GuardedBackend) ProcessAudio(ctx context.Context, wav []byte, req backend.TurnRequest) (*backend.TurnResult, error) {
	return guard(ctx, g, OpProcessAudio, g.metrics.UploadDuration, func(ctx context.Context) (*backend.TurnResult, error) {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("consultorio.wav_bytes", len(wav)),
			attribute.Int("consultorio.stress_level", req.StressLevel),
			attribute.Int("consultorio.turn", req.TurnCount),
		)
		return g.api.ProcessAudio(ctx, wav, req)
	})
}

// SynthesizeText implements [backend.API].
func (g *GuardedBackend) SynthesizeText(ctx context.Context, text string, stressLevel int) (*backend.Synthesis, error) {
	return guard(ctx, g, OpSynthesizeText, g.metrics.SynthesisDuration, func(ctx context.Context) (*backend.Synthesis, error) {
		return g.api.SynthesizeText(ctx, text, stressLevel)
	})
}

// DownloadAudio implements [backend.API].
func (g *GuardedBackend) DownloadAudio(ctx context.Context, url string) (*backend.AudioAsset, error) {
	return guard(ctx, g, OpDownloadAudio, g.metrics.DownloadDuration, func(ctx context.Context) (*backend.AudioAsset, error) {
		return g.api.DownloadAudio(ctx, url)
	})
}

// guard runs fn through the breaker inside a span and records the outcome.
// hist, when non-nil, receives the latency of calls that reached the backend.
func guard[T any](ctx context.Context, g *GuardedBackend, op string, hist metric.Float64Histogram, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := observe.StartSpan(ctx, "backend."+op)

	var res T
	start := time.Now()
	reached := false
	err := g.breaker.Execute(func() error {
		reached = true
		var err error
		res, err = fn(ctx)
		return err
	})
	if reached && hist != nil {
		hist.Record(ctx, time.Since(start).Seconds())
	}

	if err != nil {
		g.metrics.RecordBackendRequest(ctx, op, "error")
		g.metrics.RecordBackendError(ctx, op, ErrorKind(err))
		if errors.Is(err, ErrCircuitOpen) {
			err = fmt.Errorf("resilience: %s: %w", op, err)
		}
		observe.EndSpan(span, err)
		var zero T
		return zero, err
	}
	g.metrics.RecordBackendRequest(ctx, op, "ok")
	observe.EndSpan(span, nil)
	return res, nil
}
