package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/consultorio/internal/session"
	"github.com/MrWong99/consultorio/pkg/audio"
)

// KnownInputs and KnownPlayers list the driver names registered by
// [NewDefaultRegistry]. Used by [Validate] to warn about unrecognised names.
var (
	KnownInputs  = []string{"portaudio", "wavfile"}
	KnownPlayers = []string{"portaudio", "simulated"}
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the zero [Config]. Useful in tests where configs
// are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. Unset fields
// are valid; they take defaults in [Config.ApplyDefaults].
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Backend
	if cfg.Backend.BaseURL != "" {
		u, err := url.Parse(cfg.Backend.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("backend.base_url %q must be an absolute http(s) URL", cfg.Backend.BaseURL))
		}
	}
	errs = appendNegative(errs, "backend.timeout", cfg.Backend.Timeout < 0)
	errs = appendNegative(errs, "backend.health_timeout", cfg.Backend.HealthTimeout < 0)
	errs = appendNegative(errs, "backend.health_interval", cfg.Backend.HealthInterval < 0)
	cb := cfg.Backend.CircuitBreaker
	errs = appendNegative(errs, "backend.circuit_breaker.max_failures", cb.MaxFailures < 0)
	errs = appendNegative(errs, "backend.circuit_breaker.reset_timeout", cb.ResetTimeout < 0)
	errs = appendNegative(errs, "backend.circuit_breaker.half_open_max", cb.HalfOpenMax < 0)

	// Audio
	a := cfg.Audio
	warnUnknown("input", a.Input, KnownInputs)
	warnUnknown("player", a.Player, KnownPlayers)
	if a.Input == "wavfile" && a.InputFile == "" {
		errs = append(errs, errors.New("audio.input_file is required when audio.input is wavfile"))
	}
	if a.SampleRate < 0 || (a.SampleRate > 0 && (a.SampleRate < 8000 || a.SampleRate > 192000)) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [8000, 192000]", a.SampleRate))
	}
	errs = appendNegative(errs, "audio.max_recording", a.MaxRecording < 0)
	errs = appendNegative(errs, "audio.min_capture", a.MinCapture < 0)
	errs = appendNegative(errs, "audio.start_timeout", a.StartTimeout < 0)
	if a.SilenceThreshold < 0 || a.SilenceThreshold >= 1 {
		errs = append(errs, fmt.Errorf("audio.silence_threshold %.4f is out of range [0, 1)", a.SilenceThreshold))
	}
	if a.Volume != nil && (*a.Volume < 0 || *a.Volume > 1) {
		slog.Warn("audio.volume out of range, clamping", "volume", *a.Volume, "clamped", audio.ClampVolume(*a.Volume))
	}
	if a.MaxRecording > 0 && a.MinCapture > a.MaxRecording {
		errs = append(errs, fmt.Errorf("audio.min_capture (%s) exceeds audio.max_recording (%s)", a.MinCapture, a.MaxRecording))
	}

	// Conversation
	errs = appendNegative(errs, "conversation.min_recording", cfg.Conversation.MinRecording < 0)
	errs = appendNegative(errs, "conversation.tick_interval", cfg.Conversation.TickInterval < 0)
	if a.MaxRecording > 0 && cfg.Conversation.MinRecording > a.MaxRecording {
		errs = append(errs, fmt.Errorf("conversation.min_recording (%s) exceeds audio.max_recording (%s)", cfg.Conversation.MinRecording, a.MaxRecording))
	}

	// Session
	s := cfg.Session
	errs = appendNegative(errs, "session.time_limit", s.TimeLimit < 0)
	if s.MaxStressForFailure != 0 && (s.MaxStressForFailure < session.MinStress || s.MaxStressForFailure > session.MaxStress) {
		errs = append(errs, fmt.Errorf("session.max_stress_for_failure %d is out of range [%d, %d]", s.MaxStressForFailure, session.MinStress, session.MaxStress))
	}
	if s.MinStressForSuccess != nil && (*s.MinStressForSuccess < session.MinStress || *s.MinStressForSuccess > session.MaxStress) {
		errs = append(errs, fmt.Errorf("session.min_stress_for_success %d is out of range [%d, %d]", *s.MinStressForSuccess, session.MinStress, session.MaxStress))
	}
	if err := cfg.SessionPolicy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}

	return errors.Join(errs...)
}

func appendNegative(errs []error, field string, negative bool) []error {
	if negative {
		errs = append(errs, fmt.Errorf("%s must not be negative", field))
	}
	return errs
}

// warnUnknown logs a warning if name is non-empty and not one of known.
// Third-party drivers may be registered under other names.
func warnUnknown(kind, name string, known []string) {
	if name == "" || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown audio driver name, may be a typo or a custom driver",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
