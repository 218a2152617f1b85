package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// bitsPerSample is fixed at 16: the backend expects canonical 16-bit PCM.
	bitsPerSample = 16

	// wavHeaderSize is the size of the canonical RIFF/WAVE header written by
	// [EncodeWAV].
	wavHeaderSize = 44

	// pcmScale maps a normalised float sample onto the int16 range.
	pcmScale = 32767
)

// ErrInvalidWAV is returned by [DecodeWAV] for data that is not a 16-bit PCM
// RIFF/WAVE stream.
var ErrInvalidWAV = errors.New("audio: invalid wav data")

// EncodeWAV wraps buf in a canonical 44-byte RIFF/WAVE header followed by
// 16-bit signed little-endian PCM. Every sample is clamped to [-1, 1] before
// scaling so amplitudes slightly above full scale cannot wrap around.
func EncodeWAV(buf Buffer) ([]byte, error) {
	if buf.Channels <= 0 {
		return nil, fmt.Errorf("audio: encode wav: invalid channel count %d", buf.Channels)
	}
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: encode wav: invalid sample rate %d", buf.SampleRate)
	}

	byteRate := buf.SampleRate * buf.Channels * bitsPerSample / 8
	blockAlign := buf.Channels * bitsPerSample / 8
	dataSize := len(buf.Samples) * 2

	out := make([]byte, wavHeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	// fmt sub-chunk
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(buf.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(buf.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)

	// data sub-chunk
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	pcm := out[wavHeaderSize:]
	for i, s := range buf.Samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(FloatToPCM16(s)))
	}
	return out, nil
}

// DecodeWAV parses a 16-bit PCM RIFF/WAVE stream into a [Buffer]. Unknown
// chunks (LIST, fact, ...) are skipped; the amplitude fields are filled in.
func DecodeWAV(data []byte) (Buffer, error) {
	info, err := parseWAV(data)
	if err != nil {
		return Buffer{}, err
	}
	if info.Format != 1 || info.BitsPerSample != bitsPerSample {
		return Buffer{}, fmt.Errorf("%w: unsupported encoding (format %d, %d bits)", ErrInvalidWAV, info.Format, info.BitsPerSample)
	}

	end := info.DataOffset + info.DataSize
	if end > len(data) {
		// Truncated or streamed files often carry a bogus data length.
		end = len(data)
	}
	pcm := data[info.DataOffset:end]

	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = PCM16ToFloat(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	maxAmp, meanAmp := Levels(samples)
	return Buffer{
		Channels:      info.Channels,
		SampleRate:    info.SampleRate,
		Samples:       samples,
		MaxAmplitude:  maxAmp,
		MeanAmplitude: meanAmp,
	}, nil
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// wavInfo holds the fields of the fmt chunk plus the location of the PCM data.
type wavInfo struct {
	Format        int
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataOffset    int
	DataSize      int
}

// parseWAV walks the RIFF chunks of a WAV stream and returns the decoded fmt
// chunk together with the offset and length of the data chunk.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, fmt.Errorf("%w: too short for a RIFF header", ErrInvalidWAV)
	}
	if !IsWAV(wav) {
		return wavInfo{}, fmt.Errorf("%w: missing RIFF/WAVE identifier", ErrInvalidWAV)
	}

	var info wavInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || offset+8+16 > len(wav) {
				return wavInfo{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			f := wav[offset+8:]
			info.Format = int(binary.LittleEndian.Uint16(f[0:2]))
			info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return wavInfo{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			if info.Channels <= 0 || info.SampleRate <= 0 {
				return wavInfo{}, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidWAV, info.Channels, info.SampleRate)
			}
			info.DataOffset = offset + 8
			info.DataSize = chunkSize
			return info, nil
		}

		// Chunks are word-aligned: pad by one byte when the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
}
