package audio

import "time"

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Buffer is the result of a single microphone capture. Samples are
// interleaved, normalised floats in [-1, 1]. A Buffer is produced once by
// [Recorder.Stop] and consumed once by [EncodeWAV].
type Buffer struct {
	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// SampleRate in Hz (16000 is what the transcription backend prefers).
	SampleRate int

	// Samples holds Channels interleaved samples per frame.
	Samples []float32

	// PossiblySilent is set when MaxAmplitude fell below the recorder's
	// silence threshold. The buffer is still usable.
	PossiblySilent bool

	// MaxAmplitude and MeanAmplitude are absolute sample levels in [0, 1].
	MaxAmplitude  float64
	MeanAmplitude float64
}

// Frames returns the number of sample frames (samples per channel).
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Format returns the buffer's sample rate and channel count.
func (b Buffer) Format() Format {
	return Format{SampleRate: b.SampleRate, Channels: b.Channels}
}
