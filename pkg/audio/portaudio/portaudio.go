// Package portaudio implements [audio.Platform] and [audio.Player] on top of
// the PortAudio library, giving the turn controller a real microphone and
// speaker on desktop and headset-tethered hosts.
//
// PortAudio must be initialised once per process; [New] does this and
// [Platform.Close] releases it.
//
// Usage:
//
//	p, err := portaudio.New()
//	defer p.Close()
//	rec := audio.NewRecorder(p)
//	player := p.Player()
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/consultorio/pkg/audio"
)

// framesPerBuffer is the blocking read size; 1024 frames is 64ms at 16kHz.
const framesPerBuffer = 1024

var _ audio.Platform = (*Platform)(nil)

// Platform enumerates PortAudio input devices and records from them.
type Platform struct {
	mu     sync.Mutex
	closed bool
}

// New initialises PortAudio.
func New() (*Platform, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Platform{}, nil
}

// Close terminates PortAudio. It is safe to call more than once.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return pa.Terminate()
}

// Player returns an [audio.Player] that plays through the default output
// device.
func (p *Platform) Player() *Player {
	return &Player{}
}

// Devices implements [audio.Platform]. Only devices with at least one input
// channel are returned; the device ID is its index in PortAudio's list.
func (p *Platform) Devices() ([]audio.DeviceInfo, error) {
	devs, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	var def *pa.DeviceInfo
	if d, err := pa.DefaultInputDevice(); err == nil {
		def = d
	}

	var out []audio.DeviceInfo
	for i, d := range devs {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, audio.DeviceInfo{
			ID:       strconv.Itoa(i),
			Name:     d.Name,
			Channels: 1,
			Default:  def != nil && d.Name == def.Name && d.HostApi == def.HostApi,
		})
	}
	return out, nil
}

// OpenCapture implements [audio.Platform]. Recording is always mono: the
// backend transcribes a single speaker.
func (p *Platform) OpenCapture(dev audio.DeviceInfo, sampleRate, maxFrames int) (audio.Capture, error) {
	devs, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	idx, err := strconv.Atoi(dev.ID)
	if err != nil || idx < 0 || idx >= len(devs) {
		return nil, fmt.Errorf("portaudio: unknown device id %q", dev.ID)
	}
	info := devs[idx]

	if info.MaxInputChannels < 1 {
		return nil, fmt.Errorf("portaudio: device %q has no input channels", info.Name)
	}
	const channels = 1

	c := &capture{
		format: audio.Format{SampleRate: sampleRate, Channels: channels},
		buf:    make([]float32, maxFrames*channels),
		chunk:  make([]float32, framesPerBuffer*channels),
		done:   make(chan struct{}),
	}

	params := pa.HighLatencyParameters(info, nil)
	params.Input.Channels = channels
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = framesPerBuffer

	stream, err := pa.OpenStream(params, c.chunk)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input stream on %q: %w", info.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("portaudio: start input stream on %q: %w", info.Name, err)
	}
	c.stream = stream

	go c.readLoop()
	return c, nil
}

// capture copies blocking stream reads into a linear buffer and publishes
// the write cursor atomically.
type capture struct {
	format audio.Format
	stream *pa.Stream
	buf    []float32
	chunk  []float32

	pos      atomic.Int64 // frames written
	stopping atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

func (c *capture) readLoop() {
	defer close(c.done)
	ch := c.format.Channels
	for !c.stopping.Load() {
		if err := c.stream.Read(); err != nil {
			if errors.Is(err, pa.InputOverflowed) {
				continue
			}
			slog.Warn("portaudio: read input stream", "err", err)
			return
		}
		written := int(c.pos.Load())
		free := len(c.buf)/ch - written
		if free <= 0 {
			// Buffer full: keep draining the device so it does not overflow.
			continue
		}
		n := min(free, len(c.chunk)/ch)
		copy(c.buf[written*ch:], c.chunk[:n*ch])
		c.pos.Store(int64(written + n))
	}
}

func (c *capture) Position() int { return int(c.pos.Load()) }

func (c *capture) Format() audio.Format { return c.format }

func (c *capture) Stop() error {
	c.stopOnce.Do(func() {
		c.stopping.Store(true)
		<-c.done
		c.stopErr = errors.Join(c.stream.Stop(), c.stream.Close())
	})
	return c.stopErr
}

func (c *capture) Samples(frames int) []float32 {
	n := min(frames, int(c.pos.Load())) * c.format.Channels
	out := make([]float32, n)
	copy(out, c.buf[:n])
	return out
}
