package observe_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/consultorio/internal/observe"
)

func TestInitProvider_WritesStationSpansToTraceFile(t *testing.T) {
	origTP, origMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})

	path := filepath.Join(t.TempDir(), "traces", "spans.jsonl")
	ctx := context.Background()
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: "test",
		StationID:      "station-3",
		BackendURL:     "http://sim.local:8000",
		TraceFile:      path,
		Registerer:     prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	_, span := observe.StartSpan(ctx, "conversation.turn")
	span.End()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trace file: %v", err)
	}
	for _, want := range []string{"conversation.turn", string(observe.AttrStation), "station-3", "http://sim.local:8000"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("trace file does not mention %q", want)
		}
	}
}

func TestInitProvider_UnwritableTraceFile(t *testing.T) {
	origTP, origMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		StationID:  "station-3",
		TraceFile:  filepath.Join(blocker, "spans.jsonl"),
		Registerer: prometheus.NewRegistry(),
	})
	if err == nil {
		t.Error("InitProvider with a trace file below a regular file: want error")
	}
}
