// Package wavfile implements [audio.Platform] by replaying a WAV file as if
// it were a microphone. Samples are released in real time, so the recorder
// sees a write cursor that advances exactly like a live device. After the
// file ends the device keeps producing silence until the buffer is full.
//
// It exists for headless runs: demos without a microphone, CI smoke tests
// against a staging backend, and reproducing a reported turn from a saved
// recording.
package wavfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrWong99/consultorio/pkg/audio"
)

// tickInterval is how often the simulated device releases samples.
const tickInterval = 20 * time.Millisecond

var _ audio.Platform = (*Platform)(nil)

// Platform exposes a single device backed by a decoded WAV file.
type Platform struct {
	name string
	src  audio.Buffer
}

// Open reads and decodes the WAV file at path.
func Open(path string) (*Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: read %q: %w", path, err)
	}
	buf, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("wavfile: decode %q: %w", path, err)
	}
	return New(filepath.Base(path), buf), nil
}

// New returns a Platform replaying buf under the device name name.
func New(name string, buf audio.Buffer) *Platform {
	return &Platform{name: name, src: buf}
}

// Devices implements [audio.Platform].
func (p *Platform) Devices() ([]audio.DeviceInfo, error) {
	return []audio.DeviceInfo{{ID: p.name, Name: "wavfile: " + p.name, Channels: 1, Default: true}}, nil
}

// OpenCapture implements [audio.Platform]. The file is converted to mono at
// sampleRate before replay.
func (p *Platform) OpenCapture(_ audio.DeviceInfo, sampleRate, maxFrames int) (audio.Capture, error) {
	if sampleRate <= 0 || maxFrames <= 0 {
		return nil, fmt.Errorf("wavfile: invalid capture size %d frames at %d Hz", maxFrames, sampleRate)
	}
	src := audio.Convert(p.src, audio.Format{SampleRate: sampleRate, Channels: 1})

	c := &capture{
		format: audio.Format{SampleRate: sampleRate, Channels: 1},
		buf:    make([]float32, maxFrames),
		done:   make(chan struct{}),
	}
	copy(c.buf, src.Samples)
	go c.run(time.Now())
	return c, nil
}

type capture struct {
	format audio.Format
	buf    []float32

	mu       sync.Mutex
	pos      int
	done     chan struct{}
	stopOnce sync.Once
}

// run advances the write cursor in step with wall-clock time.
func (c *capture) run(start time.Time) {
	t := time.NewTicker(tickInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-t.C:
			frames := int(now.Sub(start).Seconds() * float64(c.format.SampleRate))
			c.mu.Lock()
			c.pos = min(frames, len(c.buf))
			full := c.pos == len(c.buf)
			c.mu.Unlock()
			if full {
				return
			}
		}
	}
}

func (c *capture) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

func (c *capture) Format() audio.Format { return c.format }

func (c *capture) Stop() error {
	c.stopOnce.Do(func() { close(c.done) })
	return nil
}

func (c *capture) Samples(frames int) []float32 {
	c.mu.Lock()
	n := min(frames, c.pos)
	c.mu.Unlock()
	out := make([]float32, n)
	copy(out, c.buf[:n])
	return out
}
