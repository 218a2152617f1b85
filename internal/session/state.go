// Package session tracks one de-escalation training session: the patient's
// stress level, the turn count, the elapsed time and the phase the session is
// in. The [Evaluator] applies the end-of-session policy and [Score] grades
// the final statistics.
package session

import (
	"slices"
	"time"
)

// Phase is the coarse state of a session as seen by the presentation layer.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseAvatarSpeaking
	PhaseWaitingForUser
	PhaseProcessingInput
	PhasePaused
	PhaseCompleted
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseInitializing:    "initializing",
	PhaseAvatarSpeaking:  "avatar_speaking",
	PhaseWaitingForUser:  "waiting_for_user",
	PhaseProcessingInput: "processing_input",
	PhasePaused:          "paused",
	PhaseCompleted:       "completed",
	PhaseFailed:          "failed",
}

// String returns the snake_case name of p.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Terminal reports whether p ends the session.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Stress bounds.
const (
	MinStress = 0
	MaxStress = 10
)

// ClampStress limits level to [MinStress, MaxStress].
func ClampStress(level int) int {
	return min(max(level, MinStress), MaxStress)
}

// Speaker identifies who said a history line.
type Speaker string

const (
	SpeakerUser   Speaker = "user"
	SpeakerAvatar Speaker = "avatar"
)

// Entry is one line of the conversation history.
type Entry struct {
	Speaker Speaker
	Text    string

	// StressLevel is the patient's stress when the line was recorded.
	StressLevel int

	// At is the session time at which the line was recorded.
	At time.Duration
}

// State is a snapshot of a session.
type State struct {
	SessionID     string
	TurnNumber    int
	StressLevel   int
	InitialStress int
	Elapsed       time.Duration
	Phase         Phase

	// Emotions lists the distinct emotion labels detected so far, in order
	// of first appearance.
	Emotions []string

	History []Entry
}

func (s State) clone() State {
	s.Emotions = slices.Clone(s.Emotions)
	s.History = slices.Clone(s.History)
	return s
}
