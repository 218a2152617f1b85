// Package audio defines microphone capture, speech playback and the WAV codec
// used by the consultorio turn controller.
//
// The primary abstractions are:
//
//   - [Platform]: enumerates input devices and opens a [Capture] on one.
//   - [Capture]: a running recording whose write cursor advances as the
//     device delivers samples into a fixed-size linear buffer.
//   - [Recorder]: the capture lifecycle used by the orchestrator: start with
//     a readiness wait, stop with trimming and validation.
//   - [Player]: plays a synthesized speech clip and reports completion.
//
// Device drivers live in sub-packages (audio/portaudio, audio/wavfile). This
// package lives under pkg/ because native shells are expected to provide
// their own [Platform] and [Player] implementations.
package audio

import (
	"context"
	"strings"
)

// DeviceInfo describes an input device exposed by a [Platform].
type DeviceInfo struct {
	// ID is the platform-specific identifier passed back to OpenCapture.
	ID string

	// Name is the human-readable device name (e.g., "Headset Microphone
	// (Oculus Virtual Audio Device)").
	Name string

	// Channels is the number of input channels the device records.
	Channels int

	// Default marks the platform's default input device.
	Default bool
}

// Capture is an active recording on one device. The device writes into a
// linear buffer sized at open time and stops writing when it is full.
//
// Implementations must be safe for concurrent use: Position is polled from
// the recorder while the device goroutine is writing.
type Capture interface {
	// Position returns the number of frames written so far (the write cursor).
	Position() int

	// Format returns the sample rate and channel count actually in use.
	Format() Format

	// Stop halts the device. The write cursor no longer advances afterwards.
	// Stop is idempotent.
	Stop() error

	// Samples returns a copy of the first frames×channels written samples.
	// It must only be called after Stop.
	Samples(frames int) []float32
}

// Platform is the entry point of an input device driver.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Devices lists the available input devices. An empty list means no
	// microphone is present.
	Devices() ([]DeviceInfo, error)

	// OpenCapture starts recording from dev at the requested sample rate into
	// a buffer of maxFrames frames. Recording begins immediately; devices may
	// take a moment before the write cursor leaves zero.
	OpenCapture(dev DeviceInfo, sampleRate, maxFrames int) (Capture, error)
}

// Clip is one synthesized utterance handed to a [Player].
type Clip struct {
	// Data is the encoded audio (MPEG or WAV). Empty for text-only replies.
	Data []byte

	// ContentType is the media type reported by the server, if any.
	ContentType string

	// Text is the transcript of the clip, used to estimate a duration when
	// no audio can be played.
	Text string
}

// Player plays speech clips. Play blocks until playback finishes or ctx is
// cancelled, in which case playback stops and ctx.Err() is returned.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}

// SelectDevice picks the first device whose name contains one of hints
// (case-insensitive, hints tried in order). With no match, the platform
// default is returned, and failing that the first device. ok is false only
// when devices is empty.
func SelectDevice(devices []DeviceInfo, hints ...string) (DeviceInfo, bool) {
	if len(devices) == 0 {
		return DeviceInfo{}, false
	}
	for _, hint := range hints {
		if hint == "" {
			continue
		}
		needle := strings.ToLower(hint)
		for _, d := range devices {
			if strings.Contains(strings.ToLower(d.Name), needle) {
				return d, true
			}
		}
	}
	for _, d := range devices {
		if d.Default {
			return d, true
		}
	}
	return devices[0], true
}
