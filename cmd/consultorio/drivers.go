package main

import (
	"github.com/MrWong99/consultorio/internal/config"
	"github.com/MrWong99/consultorio/pkg/audio"
	"github.com/MrWong99/consultorio/pkg/audio/portaudio"
	"github.com/MrWong99/consultorio/pkg/audio/wavfile"
)

// registerBuiltinDrivers registers every audio input and player that ships
// with consultorio. The names match config.KnownInputs and
// config.KnownPlayers.
func registerBuiltinDrivers(reg *config.Registry) {
	// ── Inputs ────────────────────────────────────────────────────────────────
	reg.RegisterInput("portaudio", func(config.AudioConfig) (audio.Platform, func() error, error) {
		p, err := portaudio.New()
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	})
	reg.RegisterInput("wavfile", func(cfg config.AudioConfig) (audio.Platform, func() error, error) {
		p, err := wavfile.Open(cfg.InputFile)
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	})

	// ── Players ───────────────────────────────────────────────────────────────
	reg.RegisterPlayer("portaudio", func(config.AudioConfig) (audio.Player, func() error, error) {
		p, err := portaudio.New()
		if err != nil {
			return nil, nil, err
		}
		return p.Player(), p.Close, nil
	})
	reg.RegisterPlayer("simulated", func(config.AudioConfig) (audio.Player, func() error, error) {
		return &audio.SimulatedPlayer{}, nil, nil
	})
}
