package observe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// serviceName is reported as service.name by every station.
const serviceName = "consultorio"

// Resource attribute keys describing the training station.
const (
	AttrStation    = attribute.Key("consultorio.station")
	AttrBackendURL = attribute.Key("consultorio.backend.url")
)

// ProviderConfig configures the OpenTelemetry SDK providers of a station.
type ProviderConfig struct {
	// ServiceVersion is the build version reported in telemetry.
	ServiceVersion string

	// StationID names the training station. It becomes the service
	// instance id, so several stations can share one metrics backend.
	// Default: the host name.
	StationID string

	// BackendURL is the simulation service the station talks to.
	BackendURL string

	// TraceFile, if set, receives every finished span as a JSON line.
	// Turn spans carry the session id, turn number, emotion and stress, so
	// the file replays a session step by step.
	TraceFile string

	// TraceExporter overrides TraceFile. Without either, spans are recorded
	// for the in-process tracer but not exported.
	TraceExporter sdktrace.SpanExporter

	// Registerer receives the Prometheus collector behind /metrics.
	// Default: [prometheus.DefaultRegisterer].
	Registerer prometheus.Registerer
}

// InitProvider installs the global meter and tracer providers:
//
//   - metrics go through the Prometheus exporter bridge so /metrics can be
//     scraped;
//   - spans go to cfg.TraceExporter, or to cfg.TraceFile.
//
// Both carry a resource naming the station and its backend. The returned
// function flushes the exporters and closes the trace file.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := stationResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if e := fn(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		return errors.Join(errs...)
	}

	// ── Metrics ──────────────────────────────────────────────────────────
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	promExp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)

	// ── Traces ───────────────────────────────────────────────────────────
	exp := cfg.TraceExporter
	if exp == nil && cfg.TraceFile != "" {
		f, err := openTraceFile(cfg.TraceFile)
		if err != nil {
			_ = shutdown(ctx)
			return nil, err
		}
		exp, err = stdouttrace.New(stdouttrace.WithWriter(f))
		if err != nil {
			f.Close()
			_ = shutdown(ctx)
			return nil, fmt.Errorf("observe: trace exporter: %w", err)
		}
		// Closed after the tracer provider's final flush.
		shutdownFuncs = append(shutdownFuncs, func(context.Context) error { return f.Close() })
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exp != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	shutdownFuncs = append([]func(context.Context) error{tp.Shutdown}, shutdownFuncs...)

	return shutdown, nil
}

func stationResource(cfg ProviderConfig) (*resource.Resource, error) {
	station := cfg.StationID
	if station == "" {
		station, _ = os.Hostname()
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if station != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(station), AttrStation.String(station))
	}
	if cfg.BackendURL != "" {
		attrs = append(attrs, AttrBackendURL.String(cfg.BackendURL))
	}
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

func openTraceFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("observe: trace file: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("observe: trace file: %w", err)
	}
	return f, nil
}
