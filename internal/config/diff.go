package config

import "github.com/MrWong99/consultorio/internal/session"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked. The log level,
// playback volume and stress bar apply immediately; the session policy
// applies from the next session.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SessionChanged bool
	NewSession     session.Config

	VolumeChanged bool
	NewVolume     float64

	StressBarChanged bool
	NewShowStressBar bool

	// RestartRequired lists changed settings that only take effect after a
	// restart (backend URL, audio drivers, listen address).
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Session policy
	if ns := new.SessionPolicy(); old.SessionPolicy() != ns {
		d.SessionChanged = true
		d.NewSession = ns
	}

	if nv := new.PlaybackVolume(); old.PlaybackVolume() != nv {
		d.VolumeChanged = true
		d.NewVolume = nv
	}

	if ns := new.StressBarVisible(); old.StressBarVisible() != ns {
		d.StressBarChanged = true
		d.NewShowStressBar = ns
	}

	restart := func(field string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, field)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.log_file", old.Server.LogFile != new.Server.LogFile)
	restart("server.results_file", old.Server.ResultsFile != new.Server.ResultsFile)
	restart("server.station_id", old.Server.StationID != new.Server.StationID)
	restart("server.trace_file", old.Server.TraceFile != new.Server.TraceFile)
	restart("backend.base_url", old.Backend.BaseURL != new.Backend.BaseURL)
	restart("backend.circuit_breaker", old.Backend.CircuitBreaker != new.Backend.CircuitBreaker)
	restart("audio.input", old.Audio.Input != new.Audio.Input || old.Audio.InputFile != new.Audio.InputFile)
	restart("audio.player", old.Audio.Player != new.Audio.Player)

	return d
}
