package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultSampleRate is the capture rate preferred by the transcription
	// backend.
	DefaultSampleRate = 16000

	// DefaultMaxDuration bounds a single capture.
	DefaultMaxDuration = 30 * time.Second

	// DefaultStartTimeout bounds the wait for a device to deliver its first
	// samples.
	DefaultStartTimeout = 2 * time.Second

	// DefaultMinDuration is the shortest capture [Recorder.Stop] accepts.
	DefaultMinDuration = 500 * time.Millisecond

	startPollInterval = 10 * time.Millisecond
)

var (
	// ErrDeviceUnavailable is returned when no input device is present.
	ErrDeviceUnavailable = errors.New("audio: no input device available")

	// ErrCaptureStartTimeout is returned when a device never advanced its
	// write cursor within the start timeout. The capture is stopped.
	ErrCaptureStartTimeout = errors.New("audio: capture did not start in time")

	// ErrAlreadyRecording is returned by Start while another capture is active.
	ErrAlreadyRecording = errors.New("audio: a capture is already active")

	// ErrEmptyCapture is returned by Stop when no samples were written.
	ErrEmptyCapture = errors.New("audio: capture is empty")

	// ErrTooShort is returned by Stop when the capture lasted less than the
	// configured minimum duration.
	ErrTooShort = errors.New("audio: capture too short")

	// ErrNotRecording is returned when a handle is not the active capture.
	ErrNotRecording = errors.New("audio: handle is not the active capture")
)

// IsSoft reports whether err is a capture outcome the caller may simply
// retry (empty or too-short recordings).
func IsSoft(err error) bool {
	return errors.Is(err, ErrEmptyCapture) || errors.Is(err, ErrTooShort)
}

// CaptureOptions configures a single [Recorder.Start] call.
type CaptureOptions struct {
	// DeviceHints are case-insensitive substrings matched against device
	// names in order (e.g., "Oculus", "Headset").
	DeviceHints []string

	// SampleRate in Hz. Default: [DefaultSampleRate].
	SampleRate int

	// MaxDuration sizes the capture buffer. Default: [DefaultMaxDuration].
	MaxDuration time.Duration
}

// Handle identifies one capture started by a [Recorder].
type Handle struct {
	capture Capture
	device  DeviceInfo
	started time.Time
}

// Device returns the device the capture is running on.
func (h *Handle) Device() DeviceInfo { return h.device }

// Started returns when the device began delivering samples.
func (h *Handle) Started() time.Time { return h.started }

// RecorderOption configures a [Recorder].
type RecorderOption func(*Recorder)

// WithStartTimeout overrides [DefaultStartTimeout].
func WithStartTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.startTimeout = d
		}
	}
}

// WithMinDuration overrides [DefaultMinDuration]. Zero disables the check.
func WithMinDuration(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d >= 0 {
			r.minDuration = d
		}
	}
}

// WithSilenceThreshold overrides [DefaultSilenceThreshold].
func WithSilenceThreshold(v float64) RecorderOption {
	return func(r *Recorder) {
		if v > 0 {
			r.silenceThreshold = v
		}
	}
}

// WithNow replaces the wall clock used to measure capture length.
func WithNow(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// Recorder runs at most one capture at a time on a [Platform].
// It is safe for concurrent use.
type Recorder struct {
	platform         Platform
	startTimeout     time.Duration
	minDuration      time.Duration
	silenceThreshold float64
	now              func() time.Time

	mu     sync.Mutex
	active *Handle
	// starting guards the readiness wait, during which active is still nil.
	starting bool
}

// NewRecorder creates a [Recorder] on platform.
func NewRecorder(platform Platform, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		platform:         platform,
		startTimeout:     DefaultStartTimeout,
		minDuration:      DefaultMinDuration,
		silenceThreshold: DefaultSilenceThreshold,
		now:              time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Available reports whether at least one input device is present.
func (r *Recorder) Available() bool {
	devs, err := r.platform.Devices()
	return err == nil && len(devs) > 0
}

// Recording reports whether a capture is active or starting.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil || r.starting
}

// Start opens a capture on the device matching opts.DeviceHints and waits,
// polling every 10ms, until the device's write cursor advances past zero.
// If that does not happen within the start timeout, the capture is stopped
// and [ErrCaptureStartTimeout] is returned.
func (r *Recorder) Start(ctx context.Context, opts CaptureOptions) (*Handle, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}

	r.mu.Lock()
	if r.active != nil || r.starting {
		r.mu.Unlock()
		return nil, ErrAlreadyRecording
	}
	r.starting = true
	r.mu.Unlock()

	h, err := r.open(ctx, opts)

	r.mu.Lock()
	r.starting = false
	if err == nil {
		r.active = h
	}
	r.mu.Unlock()
	return h, err
}

func (r *Recorder) open(ctx context.Context, opts CaptureOptions) (*Handle, error) {
	devs, err := r.platform.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	dev, ok := SelectDevice(devs, opts.DeviceHints...)
	if !ok {
		return nil, ErrDeviceUnavailable
	}

	maxFrames := int(opts.MaxDuration.Seconds() * float64(opts.SampleRate))
	c, err := r.platform.OpenCapture(dev, opts.SampleRate, maxFrames)
	if err != nil {
		return nil, fmt.Errorf("audio: open capture on %q: %w", dev.Name, err)
	}

	if err := r.waitForData(ctx, c); err != nil {
		if stopErr := c.Stop(); stopErr != nil {
			slog.Warn("audio: stop capture after failed start", "device", dev.Name, "err", stopErr)
		}
		return nil, err
	}

	slog.Debug("audio: capture started", "device", dev.Name, "sample_rate", c.Format().SampleRate, "channels", c.Format().Channels)
	return &Handle{capture: c, device: dev, started: r.now()}, nil
}

// waitForData blocks until c reports a non-zero write cursor.
func (r *Recorder) waitForData(ctx context.Context, c Capture) error {
	if c.Position() > 0 {
		return nil
	}
	deadline := time.NewTimer(r.startTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(startPollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrCaptureStartTimeout
		case <-tick.C:
			if c.Position() > 0 {
				return nil
			}
		}
	}
}

// Stop ends the capture identified by h and returns exactly the samples the
// device wrote, trimmed by the write cursor. Empty and too-short captures
// return [ErrEmptyCapture] and [ErrTooShort]; see [IsSoft].
func (r *Recorder) Stop(h *Handle) (Buffer, error) {
	if err := r.release(h); err != nil {
		return Buffer{}, err
	}
	elapsed := r.now().Sub(h.started)

	// Read the cursor before stopping: some drivers reset it on stop.
	frames := h.capture.Position()
	if err := h.capture.Stop(); err != nil {
		slog.Warn("audio: stop capture", "device", h.device.Name, "err", err)
	}
	if frames <= 0 {
		return Buffer{}, ErrEmptyCapture
	}
	if elapsed < r.minDuration {
		return Buffer{}, fmt.Errorf("%w: %s < %s", ErrTooShort, elapsed.Round(time.Millisecond), r.minDuration)
	}

	f := h.capture.Format()
	buf := Buffer{
		Channels:   f.Channels,
		SampleRate: f.SampleRate,
		Samples:    h.capture.Samples(frames),
	}
	buf.MaxAmplitude, buf.MeanAmplitude = Levels(buf.Samples)
	if buf.MaxAmplitude < r.silenceThreshold {
		buf.PossiblySilent = true
		slog.Warn("audio: capture may be silent",
			"device", h.device.Name,
			"max_amplitude", buf.MaxAmplitude,
			"mean_amplitude", buf.MeanAmplitude,
		)
	}
	return buf, nil
}

// Cancel stops and discards the capture identified by h. Cancelling a handle
// that is no longer active is a no-op.
func (r *Recorder) Cancel(h *Handle) {
	if h == nil || r.release(h) != nil {
		return
	}
	if err := h.capture.Stop(); err != nil {
		slog.Warn("audio: cancel capture", "device", h.device.Name, "err", err)
	}
}

func (r *Recorder) release(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil || r.active != h {
		return ErrNotRecording
	}
	r.active = nil
	return nil
}
