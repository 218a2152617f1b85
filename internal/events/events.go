// Package events defines the typed notifications a training session emits
// and the [Bus] that fans them out to presentation collaborators (the
// terminal console, the WebSocket bridge, tests).
//
// Producers depend only on [Publisher]; consumers call [Bus.Subscribe] and
// switch on the concrete event type of each [Envelope].
package events

import (
	"encoding/json"
	"time"
)

// Event is a single notification. Kind returns a stable, snake_case name
// used as the "type" field on the wire.
type Event interface {
	Kind() string
}

// Publisher accepts events. Implementations must not block.
type Publisher interface {
	Publish(Event)
}

// Discard is a [Publisher] that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// ─── Conversation ─────────────────────────────────────────────────────────────

// StateChanged reports a conversation state machine transition
// (idle, recording, uploading, avatar_responding, paused).
type StateChanged struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MicStateChanged drives the microphone indicator: "closed", "open" or
// "processing".
type MicStateChanged struct {
	State string `json:"state"`
}

// UserAudioCaptured is emitted when a recording has been encoded and is about
// to be uploaded.
type UserAudioCaptured struct {
	Duration       time.Duration `json:"duration"`
	Bytes          int           `json:"bytes"`
	PossiblySilent bool          `json:"possibly_silent"`
}

// EmotionClassified carries the backend's interpretation of one user turn.
type EmotionClassified struct {
	Turn          int     `json:"turn"`
	Transcription string  `json:"transcription"`
	Emotion       string  `json:"emotion"`
	Confidence    float64 `json:"confidence"`
	StressLevel   int     `json:"stress_level"`
	Reply         string  `json:"reply"`
}

// AvatarStartedSpeaking is emitted when the patient's reply starts playing.
// Simulated is set when no audio is available and the duration is estimated.
type AvatarStartedSpeaking struct {
	Text      string `json:"text"`
	Simulated bool   `json:"simulated"`
}

// AvatarFinishedSpeaking is emitted when playback completes or is skipped.
type AvatarFinishedSpeaking struct{}

// TurnFailed reports a recoverable failure. Stage is one of "capture",
// "upload", "download" or "playback". Soft failures (a recording that was
// too short or empty) are expected user behaviour rather than faults.
type TurnFailed struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
	Soft  bool   `json:"soft"`
}

// ConnectivityChanged is level-triggered: it fires only when backend
// reachability flips.
type ConnectivityChanged struct {
	Connected bool `json:"connected"`
}

// DisplayChanged reports a change of what the trainee may see. Sent when
// the stress bar is shown or hidden at runtime.
type DisplayChanged struct {
	ShowStressBar bool `json:"show_stress_bar"`
}

// ─── Session ──────────────────────────────────────────────────────────────────

// PhaseChanged reports a session phase transition.
type PhaseChanged struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StressChanged reports a (clamped) change of the patient's stress level.
type StressChanged struct {
	Previous int `json:"previous"`
	Current  int `json:"current"`
}

// TimerTick is emitted periodically while the session runs.
type TimerTick struct {
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
}

// SessionEnded carries the final outcome and its evaluation.
type SessionEnded struct {
	SessionID     string        `json:"session_id"`
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	InitialStress int           `json:"initial_stress"`
	FinalStress   int           `json:"final_stress"`
	Turns         int           `json:"turns"`
	Elapsed       time.Duration `json:"elapsed"`
	Emotions      []string      `json:"emotions"`
	Score         float64       `json:"score"`
	Grade         string        `json:"grade"`
	Feedback      string        `json:"feedback"`
}

func (StateChanged) Kind() string           { return "state_changed" }
func (MicStateChanged) Kind() string        { return "mic_state_changed" }
func (UserAudioCaptured) Kind() string      { return "user_audio_captured" }
func (EmotionClassified) Kind() string      { return "emotion_classified" }
func (AvatarStartedSpeaking) Kind() string  { return "avatar_started_speaking" }
func (AvatarFinishedSpeaking) Kind() string { return "avatar_finished_speaking" }
func (TurnFailed) Kind() string             { return "turn_failed" }
func (ConnectivityChanged) Kind() string    { return "connectivity_changed" }
func (DisplayChanged) Kind() string         { return "display_changed" }
func (PhaseChanged) Kind() string           { return "phase_changed" }
func (StressChanged) Kind() string          { return "stress_changed" }
func (TimerTick) Kind() string              { return "timer_tick" }
func (SessionEnded) Kind() string           { return "session_ended" }

// ─── Wire format ──────────────────────────────────────────────────────────────

// Envelope is an event stamped with its publication time.
type Envelope struct {
	At    time.Time
	Event Event
}

// wireEnvelope is the JSON shape of an [Envelope].
type wireEnvelope struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data Event     `json:"data"`
}

// Marshal encodes env as {"type": ..., "at": ..., "data": {...}}.
func Marshal(env Envelope) ([]byte, error) {
	return json.Marshal(wireEnvelope{Type: env.Event.Kind(), At: env.At, Data: env.Event})
}
