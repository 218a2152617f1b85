// Package mock provides in-memory mock implementations of the [audio.Platform],
// [audio.Capture], and [audio.Player] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	capture := mock.NewCapture(audio.Format{SampleRate: 16000, Channels: 1})
//	capture.Write(samples...)
//	platform := &mock.Platform{
//	    DevicesResult: []audio.DeviceInfo{{ID: "0", Name: "Headset Mic"}},
//	    CaptureResult: capture,
//	}
//	rec := audio.NewRecorder(platform)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/consultorio/pkg/audio"
)

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture is a mock implementation of [audio.Capture]. Samples written with
// [Capture.Write] advance the write cursor, as a device would.
type Capture struct {
	mu sync.Mutex

	format  audio.Format
	samples []float32
	stopped bool

	// StopError is returned by [Capture.Stop].
	StopError error

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// NewCapture returns an empty [Capture] reporting format.
func NewCapture(format audio.Format) *Capture {
	return &Capture{format: format}
}

// Write appends interleaved samples. Writes after Stop are ignored.
func (c *Capture) Write(samples ...float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.samples = append(c.samples, samples...)
}

// Position implements [audio.Capture].
func (c *Capture) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.format.Channels <= 0 {
		return len(c.samples)
	}
	return len(c.samples) / c.format.Channels
}

// Format implements [audio.Capture].
func (c *Capture) Format() audio.Format {
	return c.format
}

// Stop implements [audio.Capture]. Returns StopError.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStop++
	c.stopped = true
	return c.StopError
}

// Stopped reports whether Stop has been called.
func (c *Capture) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Samples implements [audio.Capture].
func (c *Capture) Samples(frames int) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := min(frames*max(c.format.Channels, 1), len(c.samples))
	out := make([]float32, n)
	copy(out, c.samples[:n])
	return out
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// OpenCall records the arguments of a single [Platform.OpenCapture] invocation.
type OpenCall struct {
	Device     audio.DeviceInfo
	SampleRate int
	MaxFrames  int
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// DevicesResult is returned by Devices.
	DevicesResult []audio.DeviceInfo

	// DevicesError is returned by Devices.
	DevicesError error

	// CaptureResult is returned by OpenCapture. When nil, OpenCapture
	// returns a fresh [Capture] that never produces samples.
	CaptureResult audio.Capture

	// NewCapture, when set, builds the capture for every OpenCapture call
	// and takes precedence over CaptureResult.
	NewCapture func(dev audio.DeviceInfo, sampleRate int) audio.Capture

	// OpenError is returned by OpenCapture.
	OpenError error

	// OpenCalls records all OpenCapture invocations.
	OpenCalls []OpenCall
}

// Devices implements [audio.Platform].
func (p *Platform) Devices() ([]audio.DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DevicesResult, p.DevicesError
}

// OpenCapture implements [audio.Platform]. Records the call and returns
// CaptureResult / OpenError.
func (p *Platform) OpenCapture(dev audio.DeviceInfo, sampleRate, maxFrames int) (audio.Capture, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenCalls = append(p.OpenCalls, OpenCall{Device: dev, SampleRate: sampleRate, MaxFrames: maxFrames})
	if p.OpenError != nil {
		return nil, p.OpenError
	}
	if p.NewCapture != nil {
		return p.NewCapture(dev, sampleRate), nil
	}
	if p.CaptureResult != nil {
		return p.CaptureResult, nil
	}
	return NewCapture(audio.Format{SampleRate: sampleRate, Channels: max(dev.Channels, 1)}), nil
}

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayError is returned by Play.
	PlayError error

	// Block, when non-nil, makes Play wait until it is closed or ctx is done.
	Block chan struct{}

	// Plays records every clip passed to Play, in order.
	Plays []audio.Clip

	level audio.Level
}

var _ audio.VolumeControl = (*Player)(nil)

// SetVolume implements [audio.VolumeControl].
func (p *Player) SetVolume(v float64) { p.level.Set(v) }

// Volume implements [audio.VolumeControl].
func (p *Player) Volume() float64 { return p.level.Get() }

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	p.mu.Lock()
	p.Plays = append(p.Plays, clip)
	block, err := p.Block, p.PlayError
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// CallCount returns how many times Play was called.
func (p *Player) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Plays)
}
