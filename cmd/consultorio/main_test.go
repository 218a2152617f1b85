package main

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/consultorio/internal/config"
	"github.com/MrWong99/consultorio/internal/journal"
	"github.com/MrWong99/consultorio/pkg/audio"
	"github.com/MrWong99/consultorio/pkg/audio/mock"
)

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScore(t *testing.T) {
	out, err := execute(t, "score", "--initial", "7", "--final", "1", "--turns", "5", "--elapsed", "2m", "--success", "--emotions", "calm,hopeful")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	for _, want := range []string{"¡SESIÓN EXITOSA!", "Estrés Final: 1/10", "Emociones: calm, hopeful", "Calificación: A "} {
		if !strings.Contains(out, want) {
			t.Errorf("output is missing %q:\n%s", want, out)
		}
	}
}

func TestScore_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing final", []string{"score"}},
		{"final out of range", []string{"score", "--final", "11"}},
		{"negative turns", []string{"score", "--final", "3", "--turns", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Errorf("score %v: want error", tt.args)
			}
		})
	}
}

func TestLoadConfig_ExplicitMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := execute(t, "--config", missing, "check")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestRunCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	reg := config.NewRegistry()
	reg.RegisterInput("fake", func(config.AudioConfig) (audio.Platform, func() error, error) {
		return &mock.Platform{DevicesResult: []audio.DeviceInfo{
			{ID: "0", Name: "Built-in Microphone", Channels: 1, Default: true},
			{ID: "1", Name: "Headset Microphone (Oculus)", Channels: 1},
		}}, nil, nil
	})
	cfg := &config.Config{
		Backend: config.BackendConfig{BaseURL: srv.URL},
		Audio:   config.AudioConfig{Input: "fake", DeviceHints: []string{"oculus"}},
	}
	cfg.ApplyDefaults()

	cmd := newCheckCmd(&rootFlags{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(t.Context())
	if err := runCheck(cmd, cfg, reg); err != nil {
		t.Fatalf("runCheck: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "ok") {
		t.Errorf("backend not reported ok:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "* 1") {
		t.Errorf("hinted device not marked:\n%s", out.String())
	}
}

func TestRunCheck_ReportsProblems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	reg := config.NewRegistry()
	reg.RegisterInput("fake", func(config.AudioConfig) (audio.Platform, func() error, error) {
		return &mock.Platform{}, nil, nil
	})
	cfg := &config.Config{
		Backend: config.BackendConfig{BaseURL: srv.URL},
		Audio:   config.AudioConfig{Input: "fake"},
	}
	cfg.ApplyDefaults()

	cmd := newCheckCmd(&rootFlags{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetContext(t.Context())
	err := runCheck(cmd, cfg, reg)
	if err == nil {
		t.Fatal("runCheck: want error")
	}
	for _, want := range []string{"unreachable", "no input device"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q is missing %q", err, want)
		}
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "consultorio.log")
	level := new(slog.LevelVar)
	level.Set(config.LogDebug.SlogLevel())
	logger, closeFn, err := newLogger(level, path)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Debug("hello", "turn", 1)
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "msg=hello") {
		t.Errorf("log = %q", data)
	}
}

func TestHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	store := journal.NewFileStore(path)
	for _, r := range []journal.Record{
		{SessionID: "s-1", InitialStress: 7, FinalStress: 9, Turns: 3, ElapsedSeconds: 95, Grade: "F"},
		{SessionID: "s-2", Success: true, InitialStress: 7, FinalStress: 2, Turns: 6, ElapsedSeconds: 190, Grade: "A"},
	} {
		if err := store.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	out, err := execute(t, "history", "--file", path, "--last", "1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if strings.Contains(out, "s-1") {
		t.Errorf("--last 1 should hide older sessions:\n%s", out)
	}
	for _, want := range []string{"s-2", "success", "3:10", "A"} {
		if !strings.Contains(out, want) {
			t.Errorf("output is missing %q:\n%s", want, out)
		}
	}
}

func TestHistory_Empty(t *testing.T) {
	out, err := execute(t, "history", "--file", filepath.Join(t.TempDir(), "none.jsonl"))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "no sessions recorded") {
		t.Errorf("output = %q", out)
	}
}
