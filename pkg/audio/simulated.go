package audio

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	// speechWordsPerSecond approximates a calm speaking rate.
	speechWordsPerSecond = 2.5

	minSimulatedSpeech = 1 * time.Second
	maxSimulatedSpeech = 20 * time.Second
)

// SimulatedPlayer stands in for a speaker when no audio can be played: it
// waits for as long as the clip would plausibly take to say.
type SimulatedPlayer struct {
	// Fixed, when positive, replaces the text-based estimate.
	Fixed time.Duration

	level Level
}

var (
	_ Player        = (*SimulatedPlayer)(nil)
	_ VolumeControl = (*SimulatedPlayer)(nil)
)

// SetVolume sets the gain reported for simulated clips.
func (p *SimulatedPlayer) SetVolume(v float64) { p.level.Set(v) }

// Volume returns the gain reported for simulated clips.
func (p *SimulatedPlayer) Volume() float64 { return p.level.Get() }

// Play waits for the clip's estimated duration or until ctx is done.
func (p *SimulatedPlayer) Play(ctx context.Context, clip Clip) error {
	d := p.Fixed
	if d <= 0 {
		d = EstimateSpeechDuration(clip.Text)
	}
	slog.Debug("audio: simulated playback", "duration", d, "volume", p.level.Get(), "text", clip.Text)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// EstimateSpeechDuration guesses how long text takes to speak aloud, bounded
// to [1s, 20s].
func EstimateSpeechDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	d := time.Duration(float64(words) / speechWordsPerSecond * float64(time.Second))
	return min(max(d, minSimulatedSpeech), maxSimulatedSpeech)
}
