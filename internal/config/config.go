// Package config defines the configuration schema for consultorio and
// provides helpers for loading it from YAML.
//
// The top-level entry point is [Load], which reads a YAML file, decodes it
// into a [Config] and validates it. [Config.ApplyDefaults] fills every unset
// field, and the To* methods translate the file schema into the option
// structs of the packages that consume it.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/consultorio/internal/conversation"
	"github.com/MrWong99/consultorio/internal/resilience"
	"github.com/MrWong99/consultorio/internal/session"
	"github.com/MrWong99/consultorio/pkg/audio"
	"github.com/MrWong99/consultorio/pkg/backend"
)

// LogLevel controls logging verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the matching [slog.Level]. Unknown and empty levels
// map to [slog.LevelInfo].
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default values applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr     = "127.0.0.1:8089"
	DefaultHealthInterval = 10 * time.Second
	DefaultInput          = "portaudio"
	DefaultPlayer         = "portaudio"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Backend      BackendConfig      `yaml:"backend"`
	Audio        AudioConfig        `yaml:"audio"`
	Conversation ConversationConfig `yaml:"conversation"`
	Session      SessionConfig      `yaml:"session"`
	Console      ConsoleConfig      `yaml:"console"`
}

// ServerConfig holds settings for the local HTTP surface (metrics, health,
// event bridge) and logging.
type ServerConfig struct {
	// ListenAddr is the TCP address for /metrics, /healthz, /readyz and /ws.
	// Set to "-" to disable the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel sets the minimum log severity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile, if set, receives log output instead of stderr. The terminal
	// console needs stderr quiet.
	LogFile string `yaml:"log_file"`

	// ResultsFile, if set, receives one JSON line per finished session.
	ResultsFile string `yaml:"results_file"`

	// StationID names this training station in telemetry. Default: the host
	// name.
	StationID string `yaml:"station_id"`

	// TraceFile, if set, receives every finished span as a JSON line.
	TraceFile string `yaml:"trace_file"`
}

// BackendConfig points at the patient simulation service.
type BackendConfig struct {
	// BaseURL of the service. Default: http://localhost:8000.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds every request except the health check.
	Timeout time.Duration `yaml:"timeout"`

	HealthTimeout time.Duration `yaml:"health_timeout"`

	// HealthInterval is how often connectivity is checked.
	HealthInterval time.Duration `yaml:"health_interval"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the breaker in front of the backend.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// AudioConfig selects and tunes the input and output drivers.
type AudioConfig struct {
	// Input names the capture driver registered in the [Registry]
	// (e.g., "portaudio", "wavfile"). Default: portaudio.
	Input string `yaml:"input"`

	// InputFile is the WAV file replayed by the "wavfile" input.
	InputFile string `yaml:"input_file"`

	// Player names the output driver (e.g., "portaudio", "simulated").
	// Default: portaudio.
	Player string `yaml:"player"`

	// DeviceHints are case-insensitive substrings matched against input
	// device names in order. The first device is used when none match.
	DeviceHints []string `yaml:"device_hints"`

	SampleRate int `yaml:"sample_rate"`

	// MaxRecording bounds a single capture.
	MaxRecording time.Duration `yaml:"max_recording"`

	// MinCapture is the shortest capture the recorder accepts.
	MinCapture time.Duration `yaml:"min_capture"`

	StartTimeout time.Duration `yaml:"start_timeout"`

	// SilenceThreshold is the peak amplitude below which a capture is
	// flagged as possibly silent.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// Volume is the playback gain in [0, 1]. Out-of-range values are
	// clamped. Default: 0.75.
	Volume *float64 `yaml:"volume"`
}

// ConversationConfig tunes the turn controller.
type ConversationConfig struct {
	// MinRecording is the shortest turn that is uploaded. Releasing the
	// talk button earlier keeps recording until this long.
	MinRecording time.Duration `yaml:"min_recording"`

	// OpeningLine is what the patient says when a session starts.
	OpeningLine string `yaml:"opening_line"`

	// SkipOpening disables the opening line.
	SkipOpening bool `yaml:"skip_opening"`

	TickInterval time.Duration `yaml:"tick_interval"`
}

// SessionConfig holds the end-of-session policy. Pointer fields distinguish
// "unset" from a legitimate zero.
type SessionConfig struct {
	InitialStress         *int          `yaml:"initial_stress"`
	MinStressForSuccess   *int          `yaml:"min_stress_for_success"`
	MaxStressForFailure   int           `yaml:"max_stress_for_failure"`
	MinTurnsForCompletion *int          `yaml:"min_turns_for_completion"`
	TimeLimit             time.Duration `yaml:"time_limit"`
}

// ConsoleConfig tunes the terminal console.
type ConsoleConfig struct {
	// ShowStressBar shows the patient's stress level. Trainers hide it to
	// make the trainee read the patient's voice instead. Default: true.
	ShowStressBar *bool `yaml:"show_stress_bar"`
}

// ApplyDefaults fills every unset field of c in place.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}

	b := &c.Backend
	if b.BaseURL == "" {
		b.BaseURL = backend.DefaultBaseURL
	}
	if b.Timeout <= 0 {
		b.Timeout = backend.DefaultTimeout
	}
	if b.HealthTimeout <= 0 {
		b.HealthTimeout = backend.DefaultHealthTimeout
	}
	if b.HealthInterval <= 0 {
		b.HealthInterval = DefaultHealthInterval
	}

	a := &c.Audio
	if a.Input == "" {
		a.Input = DefaultInput
	}
	if a.Player == "" {
		a.Player = DefaultPlayer
	}
	if a.SampleRate <= 0 {
		a.SampleRate = audio.DefaultSampleRate
	}
	if a.MaxRecording <= 0 {
		a.MaxRecording = audio.DefaultMaxDuration
	}
	if a.MinCapture <= 0 {
		a.MinCapture = audio.DefaultMinDuration
	}
	if a.StartTimeout <= 0 {
		a.StartTimeout = audio.DefaultStartTimeout
	}
	if a.SilenceThreshold <= 0 {
		a.SilenceThreshold = audio.DefaultSilenceThreshold
	}
	if a.Volume == nil {
		a.Volume = ptr(audio.DefaultVolume)
	}

	cv := &c.Conversation
	if cv.MinRecording <= 0 {
		cv.MinRecording = conversation.DefaultMinRecording
	}
	if cv.OpeningLine == "" {
		cv.OpeningLine = conversation.DefaultOpeningLine
	}
	if cv.TickInterval <= 0 {
		cv.TickInterval = conversation.DefaultTickInterval
	}

	def := session.DefaultConfig()
	s := &c.Session
	if s.InitialStress == nil {
		s.InitialStress = ptr(def.InitialStress)
	}
	if s.MinStressForSuccess == nil {
		s.MinStressForSuccess = ptr(def.MinStressForSuccess)
	}
	if s.MaxStressForFailure == 0 {
		s.MaxStressForFailure = def.MaxStressForFailure
	}
	if s.MinTurnsForCompletion == nil {
		s.MinTurnsForCompletion = ptr(def.MinTurnsForCompletion)
	}
	if s.TimeLimit <= 0 {
		s.TimeLimit = def.TimeLimit
	}

	if c.Console.ShowStressBar == nil {
		c.Console.ShowStressBar = ptr(true)
	}
}

// PlaybackVolume returns the configured playback gain clamped to [0, 1].
func (c *Config) PlaybackVolume() float64 {
	if c.Audio.Volume == nil {
		return audio.DefaultVolume
	}
	return audio.ClampVolume(*c.Audio.Volume)
}

// StressBarVisible reports whether the console shows the stress bar.
func (c *Config) StressBarVisible() bool {
	return c.Console.ShowStressBar == nil || *c.Console.ShowStressBar
}

// SessionPolicy returns the end-of-session policy, with defaults for every
// unset field.
func (c *Config) SessionPolicy() session.Config {
	out := session.DefaultConfig()
	s := c.Session
	if s.InitialStress != nil {
		out.InitialStress = *s.InitialStress
	}
	if s.MinStressForSuccess != nil {
		out.MinStressForSuccess = *s.MinStressForSuccess
	}
	if s.MaxStressForFailure != 0 {
		out.MaxStressForFailure = s.MaxStressForFailure
	}
	if s.MinTurnsForCompletion != nil {
		out.MinTurnsForCompletion = *s.MinTurnsForCompletion
	}
	if s.TimeLimit > 0 {
		out.TimeLimit = s.TimeLimit
	}
	return out
}

// ControllerConfig returns the turn controller configuration.
func (c *Config) ControllerConfig() conversation.Config {
	cc := conversation.DefaultConfig()
	cc.Session = c.SessionPolicy()
	cc.Capture = audio.CaptureOptions{
		DeviceHints: c.Audio.DeviceHints,
		SampleRate:  c.Audio.SampleRate,
		MaxDuration: c.Audio.MaxRecording,
	}
	if c.Conversation.MinRecording > 0 {
		cc.MinRecording = c.Conversation.MinRecording
	}
	if c.Conversation.TickInterval > 0 {
		cc.TickInterval = c.Conversation.TickInterval
	}
	switch {
	case c.Conversation.SkipOpening:
		cc.OpeningLine = ""
	case c.Conversation.OpeningLine != "":
		cc.OpeningLine = c.Conversation.OpeningLine
	}
	return cc
}

// RecorderOptions returns the options for [audio.NewRecorder].
func (c *Config) RecorderOptions() []audio.RecorderOption {
	var opts []audio.RecorderOption
	if c.Audio.StartTimeout > 0 {
		opts = append(opts, audio.WithStartTimeout(c.Audio.StartTimeout))
	}
	if c.Audio.MinCapture > 0 {
		opts = append(opts, audio.WithMinDuration(c.Audio.MinCapture))
	}
	if c.Audio.SilenceThreshold > 0 {
		opts = append(opts, audio.WithSilenceThreshold(c.Audio.SilenceThreshold))
	}
	return opts
}

// BackendOptions returns the options for [backend.New].
func (c *Config) BackendOptions() []backend.Option {
	var opts []backend.Option
	if c.Backend.Timeout > 0 {
		opts = append(opts, backend.WithTimeout(c.Backend.Timeout))
	}
	if c.Backend.HealthTimeout > 0 {
		opts = append(opts, backend.WithHealthTimeout(c.Backend.HealthTimeout))
	}
	return opts
}

// BreakerConfig returns the circuit breaker tuning for the backend.
func (c *Config) BreakerConfig() resilience.CircuitBreakerConfig {
	cb := c.Backend.CircuitBreaker
	return resilience.CircuitBreakerConfig{
		Name:         "backend",
		MaxFailures:  cb.MaxFailures,
		ResetTimeout: cb.ResetTimeout,
		HalfOpenMax:  cb.HalfOpenMax,
	}
}

func ptr[T any](v T) *T { return &v }
