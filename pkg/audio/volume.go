package audio

import (
	"math"
	"sync/atomic"
)

// DefaultVolume is the playback gain used until a volume is set.
const DefaultVolume = 0.75

// VolumeControl is implemented by players whose output level can change
// between and during clips.
type VolumeControl interface {
	SetVolume(v float64)
	Volume() float64
}

// ClampVolume limits v to [0, 1]. NaN maps to 0.
func ClampVolume(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return min(v, 1)
}

// ApplyGain scales samples in place. A gain of 1 leaves them untouched.
func ApplyGain(samples []float32, gain float64) {
	if gain == 1 {
		return
	}
	g := float32(gain)
	for i := range samples {
		samples[i] *= g
	}
}

// FillScaled copies src into dst scaled by gain, zeroes the rest of dst and
// returns the number of samples copied.
func FillScaled(dst, src []float32, gain float64) int {
	n := copy(dst, src)
	ApplyGain(dst[:n], gain)
	clear(dst[n:])
	return n
}

// Level is a playback volume safe for concurrent use. The zero value reads
// as [DefaultVolume].
type Level struct {
	bits atomic.Uint64
	set  atomic.Bool
}

// Set stores v clamped to [0, 1].
func (l *Level) Set(v float64) {
	l.bits.Store(math.Float64bits(ClampVolume(v)))
	l.set.Store(true)
}

// Get returns the current volume.
func (l *Level) Get() float64 {
	if !l.set.Load() {
		return DefaultVolume
	}
	return math.Float64frombits(l.bits.Load())
}
