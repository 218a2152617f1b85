package audio

import (
	"fmt"
	"log/slog"
	"math"
)

// DefaultSilenceThreshold is the peak amplitude below which a capture is
// flagged as possibly silent.
const DefaultSilenceThreshold = 0.001

// FloatToPCM16 clamps s to [-1, 1] and scales it to a signed 16-bit sample.
// The fractional part is truncated. NaN maps to silence.
func FloatToPCM16(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * pcmScale)
}

// PCM16ToFloat converts a signed 16-bit sample to a normalised float. The
// result may undershoot -1 by one quantisation step for math.MinInt16.
func PCM16ToFloat(s int16) float32 {
	return float32(s) / pcmScale
}

// Levels returns the peak and mean absolute amplitude of samples. Both are
// zero for an empty slice.
func Levels(samples []float32) (maxAmp, meanAmp float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		a := math.Abs(float64(s))
		sum += a
		if a > maxAmp {
			maxAmp = a
		}
	}
	return maxAmp, sum / float64(len(samples))
}

// Convert returns buf in the target format. Resampling happens first (on the
// smaller, already downmixed stream where possible), then channel conversion.
// A buffer already in the target format is returned unchanged.
func Convert(buf Buffer, target Format) Buffer {
	if buf.SampleRate == target.SampleRate && buf.Channels == target.Channels {
		return buf
	}
	slog.Debug("audio format mismatch: converting",
		"from", formatString(buf.SampleRate, buf.Channels),
		"to", formatString(target.SampleRate, target.Channels),
	)

	samples := buf.Samples
	channels := buf.Channels

	if target.Channels == 1 && channels > 1 {
		samples = ToMono(samples, channels)
		channels = 1
	}
	if buf.SampleRate != target.SampleRate {
		samples = Resample(samples, channels, buf.SampleRate, target.SampleRate)
	}
	if target.Channels == 2 && channels == 1 {
		samples = MonoToStereo(samples)
		channels = 2
	}

	out := Buffer{Channels: channels, SampleRate: target.SampleRate, Samples: samples}
	out.MaxAmplitude, out.MeanAmplitude = Levels(samples)
	return out
}

// ToMono averages every frame of an interleaved multi-channel stream.
func ToMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(samples []float32) []float32 {
	out := make([]float32, len(samples)*2)
	for i, s := range samples {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// Resample converts an interleaved stream from srcRate to dstRate using
// linear interpolation. Invalid rates return the input unchanged.
func Resample(samples []float32, channels, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 || srcRate == dstRate {
		return samples
	}
	srcFrames := len(samples) / channels
	if srcFrames == 0 {
		return nil
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]float32, dstFrames*channels)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for c := range channels {
			s0 := samples[idx*channels+c]
			s1 := samples[next*channels+c]
			out[i*channels+c] = s0*(1-frac) + s1*frac
		}
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "16000Hz mono".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
