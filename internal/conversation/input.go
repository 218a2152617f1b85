package conversation

import "fmt"

// State is the turn controller's position in a single exchange.
type State int

const (
	// StateIdle: the trainee may start talking.
	StateIdle State = iota

	// StateRecording: the microphone is capturing.
	StateRecording

	// StateUploading: the turn is with the backend.
	StateUploading

	// StateAvatarResponding: the patient is speaking.
	StateAvatarResponding

	// StatePaused: everything is frozen until resume.
	StatePaused
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateRecording:        "recording",
	StateUploading:        "uploading",
	StateAvatarResponding: "avatar_responding",
	StatePaused:           "paused",
}

// String returns the snake_case name of s.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MicState drives the microphone indicator.
type MicState int

const (
	// MicClosed: input is not accepted (grey).
	MicClosed MicState = iota

	// MicOpen: the trainee may talk (green).
	MicOpen

	// MicProcessing: a turn is being processed (yellow).
	MicProcessing
)

// String returns "closed", "open" or "processing".
func (m MicState) String() string {
	switch m {
	case MicOpen:
		return "open"
	case MicProcessing:
		return "processing"
	default:
		return "closed"
	}
}

// Source identifies where an input came from.
type Source string

const (
	SourceKeyboard   Source = "keyboard"
	SourceController Source = "controller"
	SourceRemote     Source = "remote"
)

// Action is a trainee intent.
type Action string

const (
	// ActionTalkPress and ActionTalkRelease implement push-to-talk.
	ActionTalkPress   Action = "talk_press"
	ActionTalkRelease Action = "talk_release"

	// ActionTalkToggle starts a recording when idle and stops it when
	// recording. Inputs without a release edge (terminal keys, single
	// controller buttons) use it.
	ActionTalkToggle Action = "talk_toggle"

	ActionPauseToggle Action = "pause_toggle"
	ActionPause       Action = "pause"
	ActionResume      Action = "resume"
)

var actions = []Action{
	ActionTalkPress, ActionTalkRelease, ActionTalkToggle,
	ActionPauseToggle, ActionPause, ActionResume,
}

// ParseAction converts a wire name into an [Action].
func ParseAction(s string) (Action, error) {
	for _, a := range actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("conversation: unknown action %q", s)
}

// InputEvent is one trainee input. Every source feeds the same queue; the
// controller handles them in arrival order.
type InputEvent struct {
	Source Source
	Action Action
}
