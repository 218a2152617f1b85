package conversation

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/consultorio/internal/events"
	"github.com/MrWong99/consultorio/internal/observe"
	"github.com/MrWong99/consultorio/internal/session"
	"github.com/MrWong99/consultorio/pkg/audio"
	"github.com/MrWong99/consultorio/pkg/backend"
)

// Turn failure stages reported in [events.TurnFailed].
const (
	StageCapture  = "capture"
	StageEncode   = "encode"
	StageUpload   = "upload"
	StageDownload = "download"
	StagePlayback = "playback"
)

// reply is something the patient says.
type reply struct {
	text     string
	audioURL string

	// stress is the level the line is synthesized at.
	stress int

	// opening lines are synthesized first and fall back to simulated
	// speech on any failure.
	opening bool
}

// ─── Recording ────────────────────────────────────────────────────────────────

func (c *Controller) press() {
	if c.ev == nil || c.ended || c.paused || c.processing || c.state != StateIdle {
		return
	}
	if !c.rec.Available() {
		c.failTurn(StageCapture, audio.ErrDeviceUnavailable, false)
		return
	}

	c.capGen++
	gen := c.capGen
	c.handle = nil
	c.stopWanted = false
	c.recStart = c.clock.Now()
	c.setState(StateRecording)

	ctx, opts := c.sessCtx, c.cfg.Capture
	go func() {
		h, err := c.rec.Start(ctx, opts)
		c.post(captureStarted{gen: gen, handle: h, err: err})
	}()
}

func (c *Controller) onCaptureStarted(m captureStarted) {
	if m.gen != c.capGen || c.state != StateRecording {
		if m.handle != nil {
			c.rec.Cancel(m.handle)
		}
		return
	}
	if m.err != nil {
		c.cancelDeferredStop()
		c.failTurn(StageCapture, m.err, audio.IsSoft(m.err))
		c.setState(StateIdle)
		return
	}
	c.handle = m.handle
	if c.stopWanted {
		c.requestStop()
	}
}

// release ends the recording, or, when it is still shorter than
// MinRecording, keeps it running and stops it once it is long enough.
func (c *Controller) release() {
	if c.state != StateRecording {
		return
	}
	elapsed := c.clock.Now().Sub(c.recStart)
	if elapsed < c.cfg.MinRecording {
		if c.deferredStop == nil {
			gen := c.capGen
			c.deferredStop = c.clock.AfterFunc(c.cfg.MinRecording-elapsed, func() {
				c.post(deferredStopMsg{gen: gen})
			})
		}
		return
	}
	c.requestStop()
}

func (c *Controller) onDeferredStop(m deferredStopMsg) {
	if m.gen != c.capGen || c.state != StateRecording {
		return
	}
	c.deferredStop = nil
	if c.clock.Now().Sub(c.recStart) < c.cfg.MinRecording {
		return
	}
	c.requestStop()
}

func (c *Controller) cancelDeferredStop() {
	if c.deferredStop != nil {
		c.deferredStop.Stop()
		c.deferredStop = nil
	}
}

// requestStop stops the recording now, or as soon as the device has started.
func (c *Controller) requestStop() {
	if c.handle == nil {
		c.stopWanted = true
		return
	}
	c.finishRecording()
}

// cancelCapture discards an active or starting recording.
func (c *Controller) cancelCapture() {
	c.cancelDeferredStop()
	if c.state != StateRecording {
		return
	}
	c.capGen++
	if c.handle != nil {
		c.rec.Cancel(c.handle)
		c.handle = nil
	}
	c.stopWanted = false
}

func (c *Controller) finishRecording() {
	h := c.handle
	c.handle = nil
	c.stopWanted = false
	c.capGen++
	c.cancelDeferredStop()

	buf, err := c.rec.Stop(h)
	if err != nil {
		c.failTurn(StageCapture, err, audio.IsSoft(err))
		c.setState(StateIdle)
		return
	}
	wav, err := audio.EncodeWAV(buf)
	if err != nil {
		c.failTurn(StageEncode, err, false)
		c.setState(StateIdle)
		return
	}

	c.startTurnSpan()
	c.metrics.RecordingDuration.Record(c.turnCtx, buf.Duration().Seconds())
	c.processing = true
	c.ev.OnUserAudioCaptured()
	c.pub.Publish(events.UserAudioCaptured{
		Duration:       buf.Duration(),
		Bytes:          len(wav),
		PossiblySilent: buf.PossiblySilent,
	})
	c.setState(StateUploading)

	snap := c.ev.Snapshot()
	req := backend.TurnRequest{
		StressLevel: snap.StressLevel,
		TurnCount:   snap.TurnNumber,
		SessionID:   snap.SessionID,
	}
	ctx, gen := c.turnCtx, c.gen
	go func() {
		res, err := c.api.ProcessAudio(ctx, wav, req)
		if err == nil && res == nil {
			err = fmt.Errorf("%w: empty turn result", backend.ErrDeserialization)
		}
		c.post(uploadDone{gen: gen, res: res, err: err})
	}()
}

// ─── Backend result ───────────────────────────────────────────────────────────

func (c *Controller) onUploadDone(m uploadDone) {
	if m.gen != c.gen {
		return
	}
	if m.err != nil {
		c.processing = false
		c.failTurn(StageUpload, m.err, false)
		c.finishTurnSpan(m.err)
		c.enter(StateIdle)
		return
	}

	if c.ev.Ended() {
		// The session ran out while the backend was working: the turn does
		// not count and the patient stays silent.
		observe.Logger(c.turnContext()).Info("conversation: turn result after session end discarded",
			"session_id", c.ev.Snapshot().SessionID)
		c.processing = false
		c.finishTurnSpan(context.Canceled)
		c.enter(StateIdle)
		c.updateMic()
		return
	}

	res := m.res
	c.ev.Record(session.SpeakerUser, res.Transcription)
	c.ev.OnEmotionClassified(res.UserEmotion, res.EmotionConfidence, res.StressLevelNew)
	c.ev.Record(session.SpeakerAvatar, res.AvatarResponseText)

	snap := c.ev.Snapshot()
	c.metrics.StressLevel.Record(c.turnContext(), int64(snap.StressLevel))
	if c.turnSpan != nil {
		c.turnSpan.SetAttributes(
			attribute.String("consultorio.emotion", res.UserEmotion),
			attribute.Int("consultorio.stress_level_new", snap.StressLevel),
		)
	}
	c.pub.Publish(events.EmotionClassified{
		Turn:          snap.TurnNumber,
		Transcription: res.Transcription,
		Emotion:       res.UserEmotion,
		Confidence:    res.EmotionConfidence,
		StressLevel:   snap.StressLevel,
		Reply:         res.AvatarResponseText,
	})
	observe.Logger(c.turnContext()).Info("conversation: turn processed",
		"session_id", snap.SessionID,
		"turn", snap.TurnNumber,
		"emotion", res.UserEmotion,
		"stress", snap.StressLevel,
	)

	if !res.HasAudio() {
		c.finishSpeaking()
		return
	}
	r := reply{text: res.AvatarResponseText, audioURL: res.AudioURL}
	if c.paused {
		c.pendingPlay = &r
		c.prior = StateAvatarResponding
		return
	}
	c.startPlayback(r)
}

// ─── Playback ─────────────────────────────────────────────────────────────────

func (c *Controller) startPlayback(r reply) {
	c.setState(StateAvatarResponding)
	c.ev.OnAvatarStartSpeaking()
	c.pub.Publish(events.AvatarStartedSpeaking{Text: r.text})

	ctx, cancel := context.WithCancel(c.turnContext())
	c.playCancel = cancel
	gen := c.gen
	go func() {
		defer cancel()
		stage, err := c.play(ctx, r)
		c.post(playbackDone{gen: gen, stage: stage, err: err})
	}()
}

// play fetches and plays r. It runs outside the loop.
func (c *Controller) play(ctx context.Context, r reply) (stage string, err error) {
	ctx, span := observe.StartSpan(ctx, "conversation.playback",
		trace.WithAttributes(attribute.Bool("consultorio.opening", r.opening)))
	defer func() { observe.EndSpan(span, err) }()

	if r.opening {
		return c.playOpening(ctx, r)
	}
	clip := audio.Clip{Text: r.text}
	if r.audioURL != "" {
		asset, err := c.api.DownloadAudio(ctx, r.audioURL)
		if err == nil && asset == nil {
			err = fmt.Errorf("%w: empty audio asset", backend.ErrDeserialization)
		}
		if err != nil {
			return StageDownload, err
		}
		clip.Data, clip.ContentType = asset.Data, asset.ContentType
	}
	if err := c.player.Play(ctx, clip); err != nil {
		return StagePlayback, err
	}
	return "", nil
}

// playOpening speaks the opening line, falling back to simulated speech when
// any step fails.
func (c *Controller) playOpening(ctx context.Context, r reply) (string, error) {
	log := observe.Logger(ctx)
	err := func() error {
		syn, err := c.api.SynthesizeText(ctx, r.text, r.stress)
		if err != nil {
			return err
		}
		if syn == nil || syn.AudioURL == "" {
			return errors.New("conversation: synthesis returned no audio")
		}
		asset, err := c.api.DownloadAudio(ctx, syn.AudioURL)
		if err != nil {
			return err
		}
		if asset == nil {
			return errors.New("conversation: empty audio asset")
		}
		return c.player.Play(ctx, audio.Clip{Data: asset.Data, ContentType: asset.ContentType, Text: r.text})
	}()
	if err == nil {
		return "", nil
	}
	if ctx.Err() != nil {
		return StagePlayback, ctx.Err()
	}

	log.Warn("conversation: opening line unavailable, simulating", "err", err)
	if err := c.fallback.Play(ctx, audio.Clip{Text: r.text}); err != nil {
		return StagePlayback, err
	}
	return "", nil
}

func (c *Controller) onPlaybackDone(m playbackDone) {
	if m.gen != c.gen {
		return
	}
	c.playCancel = nil
	if m.err != nil && !errors.Is(m.err, context.Canceled) {
		c.pub.Publish(events.TurnFailed{Stage: m.stage, Error: m.err.Error(), Soft: true})
		c.metrics.RecordTurnFailure(c.turnContext(), m.stage, true)
		observe.Logger(c.turnContext()).Warn("conversation: reply not played", "stage", m.stage, "err", m.err)
	}
	c.pub.Publish(events.AvatarFinishedSpeaking{})
	c.finishSpeaking()
}

// finishSpeaking closes the turn and hands the floor back to the trainee.
func (c *Controller) finishSpeaking() {
	c.processing = false
	c.ev.OnAvatarFinishedSpeaking()
	c.finishTurnSpan(nil)
	c.enter(StateIdle)
	c.updateMic()
}
