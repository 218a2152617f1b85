package audio_test

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/MrWong99/consultorio/pkg/audio"
)

func TestEncodeWAV_Header(t *testing.T) {
	buf := audio.Buffer{Channels: 2, SampleRate: 16000, Samples: make([]float32, 10)}
	wav, err := audio.EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if len(wav) != 44+20 {
		t.Fatalf("len = %d, want %d", len(wav), 64)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"riff", string(wav[0:4]), "RIFF"},
		{"riff size", binary.LittleEndian.Uint32(wav[4:8]), uint32(36 + 20)},
		{"wave", string(wav[8:12]), "WAVE"},
		{"fmt", string(wav[12:16]), "fmt "},
		{"fmt size", binary.LittleEndian.Uint32(wav[16:20]), uint32(16)},
		{"audio format", binary.LittleEndian.Uint16(wav[20:22]), uint16(1)},
		{"channels", binary.LittleEndian.Uint16(wav[22:24]), uint16(2)},
		{"sample rate", binary.LittleEndian.Uint32(wav[24:28]), uint32(16000)},
		{"byte rate", binary.LittleEndian.Uint32(wav[28:32]), uint32(16000 * 2 * 2)},
		{"block align", binary.LittleEndian.Uint16(wav[32:34]), uint16(4)},
		{"bits", binary.LittleEndian.Uint16(wav[34:36]), uint16(16)},
		{"data", string(wav[36:40]), "data"},
		{"data size", binary.LittleEndian.Uint32(wav[40:44]), uint32(20)},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestEncodeWAV_ClampsOverflow(t *testing.T) {
	buf := audio.Buffer{Channels: 1, SampleRate: 8000, Samples: []float32{1.0001, -1.5, 2}}
	wav, err := audio.EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	want := []int16{32767, -32767, 32767}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(wav[44+i*2:]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestEncodeWAV_InvalidFormat(t *testing.T) {
	if _, err := audio.EncodeWAV(audio.Buffer{Channels: 0, SampleRate: 16000}); err == nil {
		t.Error("expected error for zero channels")
	}
	if _, err := audio.EncodeWAV(audio.Buffer{Channels: 1, SampleRate: 0}); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestWAV_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, channels := range []int{1, 2} {
		for _, n := range []int{0, 1, 160, 16000} {
			samples := make([]float32, n*channels)
			for i := range samples {
				samples[i] = rng.Float32()*2 - 1
			}
			in := audio.Buffer{Channels: channels, SampleRate: 16000, Samples: samples}

			wav, err := audio.EncodeWAV(in)
			if err != nil {
				t.Fatalf("EncodeWAV: %v", err)
			}
			out, err := audio.DecodeWAV(wav)
			if err != nil {
				t.Fatalf("DecodeWAV: %v", err)
			}
			if out.Channels != channels || out.SampleRate != 16000 {
				t.Fatalf("format = %d ch @ %d Hz", out.Channels, out.SampleRate)
			}
			if len(out.Samples) != len(samples) {
				t.Fatalf("channels=%d n=%d: got %d samples, want %d", channels, n, len(out.Samples), len(samples))
			}
			const tolerance = 1.0/32767 + 1e-6 // one quantisation step plus float32 rounding
			for i := range samples {
				if d := math.Abs(float64(out.Samples[i] - samples[i])); d > tolerance {
					t.Fatalf("sample %d: |%v - %v| = %v exceeds quantisation error", i, out.Samples[i], samples[i], d)
				}
			}
		}
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	wav, err := audio.EncodeWAV(audio.Buffer{Channels: 1, SampleRate: 22050, Samples: []float32{0.5, -0.5}})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	// Insert an odd-sized LIST chunk (padded to even) between fmt and data.
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	patched := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)

	buf, err := audio.DecodeWAV(patched)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if buf.SampleRate != 22050 || len(buf.Samples) != 2 {
		t.Errorf("got %d samples @ %d Hz, want 2 @ 22050", len(buf.Samples), buf.SampleRate)
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	tests := map[string][]byte{
		"empty":      nil,
		"not riff":   []byte("RIFX\x00\x00\x00\x00WAVEfmt "),
		"no data":    []byte("RIFF\x04\x00\x00\x00WAVE"),
		"mp3 header": {0xFF, 0xFB, 0x90, 0x64, 0, 0, 0, 0, 0, 0, 0, 0},
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := audio.DecodeWAV(data)
			if !errors.Is(err, audio.ErrInvalidWAV) {
				t.Errorf("err = %v, want ErrInvalidWAV", err)
			}
		})
	}
}

func TestBuffer_Duration(t *testing.T) {
	buf := audio.Buffer{Channels: 2, SampleRate: 16000, Samples: make([]float32, 16000)}
	if got := buf.Duration().Seconds(); got != 0.5 {
		t.Errorf("Duration = %vs, want 0.5s", got)
	}
}
