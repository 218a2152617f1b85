package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/consultorio/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want []string // substrings the error must contain
	}{
		{
			name: "invalid log level",
			yaml: "server:\n  log_level: verbose\n",
			want: []string{"server.log_level", "verbose"},
		},
		{
			name: "relative base url",
			yaml: "backend:\n  base_url: localhost:8000\n",
			want: []string{"backend.base_url"},
		},
		{
			name: "negative timeout",
			yaml: "backend:\n  timeout: -1s\n",
			want: []string{"backend.timeout must not be negative"},
		},
		{
			name: "negative breaker failures",
			yaml: "backend:\n  circuit_breaker:\n    max_failures: -2\n",
			want: []string{"backend.circuit_breaker.max_failures"},
		},
		{
			name: "wavfile without file",
			yaml: "audio:\n  input: wavfile\n",
			want: []string{"audio.input_file is required"},
		},
		{
			name: "sample rate out of range",
			yaml: "audio:\n  sample_rate: 100\n",
			want: []string{"audio.sample_rate 100"},
		},
		{
			name: "silence threshold out of range",
			yaml: "audio:\n  silence_threshold: 1.5\n",
			want: []string{"audio.silence_threshold"},
		},
		{
			name: "min recording longer than max",
			yaml: "audio:\n  max_recording: 5s\nconversation:\n  min_recording: 10s\n",
			want: []string{"conversation.min_recording (10s) exceeds audio.max_recording (5s)"},
		},
		{
			name: "initial stress out of range",
			yaml: "session:\n  initial_stress: 12\n",
			want: []string{"initial_stress 12 out of range"},
		},
		{
			name: "inverted thresholds",
			yaml: "session:\n  min_stress_for_success: 6\n  max_stress_for_failure: 4\n",
			want: []string{"min_stress_for_success (6) must be below max_stress_for_failure (4)"},
		},
		{
			name: "max stress out of range",
			yaml: "session:\n  max_stress_for_failure: 11\n",
			want: []string{"session.max_stress_for_failure 11"},
		},
		{
			name: "negative time limit",
			yaml: "session:\n  time_limit: -5m\n",
			want: []string{"session.time_limit must not be negative"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should contain %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
audio:
  sample_rate: 5
session:
  time_limit: -1s
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, w := range []string{"server.log_level", "audio.sample_rate", "session.time_limit"} {
		if !strings.Contains(err.Error(), w) {
			t.Errorf("joined error is missing %q: %v", w, err)
		}
	}
}

func TestValidate_ZeroStressThresholdAllowed(t *testing.T) {
	t.Parallel()
	yaml := `
session:
  initial_stress: 0
  min_stress_for_success: 0
  min_turns_for_completion: 0
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownDriverOnlyWarns(t *testing.T) {
	t.Parallel()
	if _, err := config.LoadFromReader(strings.NewReader("audio:\n  input: jack\n  player: pulse\n")); err != nil {
		t.Fatalf("unknown driver names should only warn, got: %v", err)
	}
}
