package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/consultorio/pkg/audio"
)

// playbackChannels is fixed at stereo: go-mp3 always decodes to 16-bit
// interleaved stereo and WAV clips are up-mixed to match.
const playbackChannels = 2

var (
	_ audio.Player        = (*Player)(nil)
	_ audio.VolumeControl = (*Player)(nil)
)

// ErrEmptyClip is returned by [Player.Play] for a clip without audio data.
var ErrEmptyClip = errors.New("portaudio: clip has no audio data")

// Player plays MPEG or WAV clips on the default output device. Only one clip
// plays at a time per Player; concurrent Play calls are serialised by the
// caller. The zero value plays at [audio.DefaultVolume].
type Player struct {
	level audio.Level
}

// SetVolume sets the output gain, clamped to [0, 1]. It applies from the next
// buffer, so a clip that is playing changes level mid-way.
func (p *Player) SetVolume(v float64) { p.level.Set(v) }

// Volume returns the output gain.
func (p *Player) Volume() float64 { return p.level.Get() }

// Play decodes clip and writes it to a PortAudio output stream, returning
// when the last buffer has been written or ctx is cancelled.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	if len(clip.Data) == 0 {
		return ErrEmptyClip
	}
	pcm, rate, err := decodeClip(clip.Data)
	if err != nil {
		return err
	}

	out := make([]float32, framesPerBuffer*playbackChannels)
	stream, err := pa.OpenDefaultStream(0, playbackChannels, float64(rate), framesPerBuffer, out)
	if err != nil {
		return fmt.Errorf("portaudio: open output stream: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(pcm); off += len(out) {
		if err := ctx.Err(); err != nil {
			return err
		}
		audio.FillScaled(out, pcm[off:], p.level.Get())
		if err := stream.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
			return fmt.Errorf("portaudio: write output stream: %w", err)
		}
	}
	return nil
}

// decodeClip returns interleaved stereo float samples and their sample rate.
func decodeClip(data []byte) ([]float32, int, error) {
	if audio.IsWAV(data) {
		buf, err := audio.DecodeWAV(data)
		if err != nil {
			return nil, 0, err
		}
		buf = audio.Convert(buf, audio.Format{SampleRate: buf.SampleRate, Channels: playbackChannels})
		return buf.Samples, buf.SampleRate, nil
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("portaudio: decode mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("portaudio: decode mp3: %w", err)
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = audio.PCM16ToFloat(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}
	return samples, dec.SampleRate(), nil
}
