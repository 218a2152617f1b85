package backend

import (
	"context"
	"errors"
	"fmt"
)

// SessionStart is the response of GET /api/session/start.
type SessionStart struct {
	SessionID     string `json:"session_id"`
	InitialStress int    `json:"initial_stress"`
	Timestamp     string `json:"timestamp"`
}

// TurnRequest carries the session context sent with every uploaded turn.
type TurnRequest struct {
	// StressLevel is the patient's stress before this turn.
	StressLevel int

	// TurnCount is the number of completed turns so far.
	TurnCount int

	// SessionID is omitted from the query when empty.
	SessionID string
}

// TurnResult is the response of POST /api/process-audio: what the user said,
// how the patient took it, and what the patient says back.
type TurnResult struct {
	Transcription       string  `json:"transcription"`
	UserEmotion         string  `json:"user_emotion"`
	EmotionConfidence   float64 `json:"emotion_confidence"`
	StressLevelPrevious int     `json:"stress_level_previous"`
	StressLevelNew      int     `json:"stress_level_new"`
	AvatarResponseText  string  `json:"avatar_response_text"`

	// AudioURL is empty for text-only replies. It may be relative to the
	// backend base URL.
	AudioURL string `json:"audio_url"`

	TurnNumber int `json:"turn_number"`
}

// HasAudio reports whether the reply comes with synthesized speech.
func (r *TurnResult) HasAudio() bool {
	return r.AudioURL != ""
}

// Synthesis is the response of POST /api/synthesize-text.
type Synthesis struct {
	Text        string `json:"text"`
	AudioURL    string `json:"audio_url"`
	StressLevel int    `json:"stress_level"`
}

// AudioAsset is a downloaded speech clip.
type AudioAsset struct {
	// URL is the absolute URL the asset was fetched from.
	URL string

	// ContentType as reported by the server (typically audio/mpeg).
	ContentType string

	Data []byte
}

// API is the set of exchanges the turn controller performs against the
// backend. [Client] is the HTTP implementation; the resilience package wraps
// it with a circuit breaker.
//
// Implementations must be safe for concurrent use.
type API interface {
	// HealthCheck inspects the backend and reports whether it is reachable.
	HealthCheck(ctx context.Context) bool

	// StartSession asks the backend for a new session.
	StartSession(ctx context.Context) (*SessionStart, error)

	// ProcessAudio uploads one WAV-encoded user turn.
	ProcessAudio(ctx context.Context, wav []byte, req TurnRequest) (*TurnResult, error)

	// SynthesizeText produces speech for avatar-initiated lines.
	SynthesizeText(ctx context.Context, text string, stressLevel int) (*Synthesis, error)

	// DownloadAudio fetches a speech clip; relative URLs are resolved
	// against the backend base URL.
	DownloadAudio(ctx context.Context, url string) (*AudioAsset, error)
}

var (
	// ErrNetwork wraps transport failures: refused connections, timeouts,
	// truncated bodies.
	ErrNetwork = errors.New("backend: network error")

	// ErrDeserialization wraps responses whose body is not the expected JSON.
	ErrDeserialization = errors.New("backend: malformed response")
)

// BackendError is a well-formed error response (non-2xx status). Detail is
// taken from a {"detail": ...} body when the server provides one.
type BackendError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *BackendError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend: %s: server returned HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("backend: %s: server returned HTTP %d: %s", e.Op, e.StatusCode, e.Detail)
}

// Temporary reports whether retrying the same request may succeed.
func (e *BackendError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429 || e.StatusCode == 408
}
