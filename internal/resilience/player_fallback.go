package resilience

import (
	"context"
	"log/slog"

	"github.com/MrWong99/consultorio/pkg/audio"
)

var (
	_ audio.Player        = (*PlayerFallback)(nil)
	_ audio.VolumeControl = (*PlayerFallback)(nil)
)

// PlayerFallback is an [audio.Player] backed by a [FallbackGroup]. Playback
// goes to the first output that plays the clip without error; an output that
// keeps failing is skipped until its breaker lets a trial call through again.
//
// A clip is never replayed on another output once ctx is cancelled, so
// interrupting playback (pause, restart) does not fall through.
type PlayerFallback struct {
	group *FallbackGroup[audio.Player]
	level audio.Level
}

// NewPlayerFallback creates a [PlayerFallback] with primary as the preferred
// output.
func NewPlayerFallback(primary audio.Player, name string, cfg FallbackConfig) *PlayerFallback {
	return &PlayerFallback{group: NewFallbackGroup(primary, name, cfg)}
}

// AddFallback registers the next output to try.
func (p *PlayerFallback) AddFallback(name string, player audio.Player) {
	p.group.AddFallback(name, player)
}

// Outputs returns the output names in the order they are tried.
func (p *PlayerFallback) Outputs() []string {
	return p.group.Names()
}

// SetVolume sets the gain of every output that supports one, so a fallback
// plays at the same level as the primary.
func (p *PlayerFallback) SetVolume(v float64) {
	p.level.Set(v)
	vol := p.level.Get()
	p.group.Each(func(name string, pl audio.Player) {
		if vc, ok := pl.(audio.VolumeControl); ok {
			vc.SetVolume(vol)
		} else {
			slog.Debug("resilience: output has no volume control", "output", name)
		}
	})
}

// Volume returns the gain last set with SetVolume.
func (p *PlayerFallback) Volume() float64 { return p.level.Get() }

// Play implements [audio.Player].
func (p *PlayerFallback) Play(ctx context.Context, clip audio.Clip) error {
	err := p.group.Execute(ctx, func(ctx context.Context, pl audio.Player) error {
		return pl.Play(ctx, clip)
	})
	if err != nil && ctx.Err() == nil {
		slog.Warn("resilience: no output could play clip", "outputs", p.group.Names(), "err", err)
	}
	return err
}
