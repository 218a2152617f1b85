package session

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/consultorio/internal/events"
)

// End-of-session messages shown to the trainee.
const (
	MessageSuccess   = "¡Desescalamiento exitoso!"
	MessageAbandoned = "El paciente ha abandonado la sesión"
	MessageTimeout   = "Tiempo agotado"

	// MessageInterrupted ends a session the trainee left before any end
	// condition was met.
	MessageInterrupted = "Sesión interrumpida"
)

// Config holds the end-of-session policy.
type Config struct {
	// InitialStress is the patient's stress level when the session starts.
	InitialStress int

	// MinStressForSuccess: the session succeeds once stress is at or below
	// this level and at least MinTurnsForCompletion turns were completed.
	MinStressForSuccess int

	// MaxStressForFailure: the patient abandons the session once stress
	// reaches this level.
	MaxStressForFailure int

	MinTurnsForCompletion int

	// TimeLimit is the maximum session time, excluding pauses.
	TimeLimit time.Duration
}

// DefaultConfig returns the standard training policy.
func DefaultConfig() Config {
	return Config{
		InitialStress:         7,
		MinStressForSuccess:   2,
		MaxStressForFailure:   10,
		MinTurnsForCompletion: 5,
		TimeLimit:             900 * time.Second,
	}
}

// Validate reports every inconsistency in c.
func (c Config) Validate() error {
	var errs []error
	if c.InitialStress < MinStress || c.InitialStress > MaxStress {
		errs = append(errs, fmt.Errorf("initial_stress %d out of range [%d, %d]", c.InitialStress, MinStress, MaxStress))
	}
	if c.MinStressForSuccess >= c.MaxStressForFailure {
		errs = append(errs, fmt.Errorf("min_stress_for_success (%d) must be below max_stress_for_failure (%d)", c.MinStressForSuccess, c.MaxStressForFailure))
	}
	if c.MinTurnsForCompletion < 0 {
		errs = append(errs, fmt.Errorf("min_turns_for_completion must not be negative, got %d", c.MinTurnsForCompletion))
	}
	if c.TimeLimit <= 0 {
		errs = append(errs, fmt.Errorf("time_limit must be positive, got %s", c.TimeLimit))
	}
	return errors.Join(errs...)
}

// Evaluator is the session state machine. It is driven by the conversation
// controller through the On* callbacks and by [Evaluator.Tick], and emits
// [events.PhaseChanged], [events.StressChanged], [events.TimerTick] and
// [events.SessionEnded] on its publisher.
//
// Once the session is Completed or Failed every further call is a no-op.
// While paused, stress and turn updates are still recorded but phase
// transitions and end-condition checks wait for [Evaluator.Resume].
//
// All methods are safe for concurrent use.
type Evaluator struct {
	cfg Config
	pub events.Publisher

	mu       sync.Mutex
	state    State
	resumeTo Phase
	success  bool
	message  string
	pending  []events.Event
}

// NewEvaluator creates an Evaluator in [PhaseInitializing]. pub may be nil.
func NewEvaluator(sessionID string, cfg Config, pub events.Publisher) *Evaluator {
	if pub == nil {
		pub = events.Discard
	}
	initial := ClampStress(cfg.InitialStress)
	return &Evaluator{
		cfg: cfg,
		pub: pub,
		state: State{
			SessionID:     sessionID,
			StressLevel:   initial,
			InitialStress: initial,
			Phase:         PhaseInitializing,
		},
	}
}

// ─── Callbacks ────────────────────────────────────────────────────────────────

// OnUserAudioCaptured marks the start of processing a user turn.
func (e *Evaluator) OnUserAudioCaptured() {
	e.do(func() { e.setPhase(PhaseProcessingInput) })
}

// OnEmotionClassified applies a backend classification: it completes the
// turn, records the emotion, applies the clamped stress level and checks
// the end conditions.
func (e *Evaluator) OnEmotionClassified(emotion string, confidence float64, newStress int) {
	e.do(func() {
		s := &e.state
		s.TurnNumber++
		if emotion != "" && !slices.Contains(s.Emotions, emotion) {
			s.Emotions = append(s.Emotions, emotion)
		}

		prev := s.StressLevel
		s.StressLevel = ClampStress(newStress)
		if s.StressLevel != prev {
			e.emit(events.StressChanged{Previous: prev, Current: s.StressLevel})
		}
		slog.Debug("session: emotion classified",
			"session_id", s.SessionID,
			"turn", s.TurnNumber,
			"emotion", emotion,
			"confidence", confidence,
			"stress", s.StressLevel,
		)

		if s.Phase != PhasePaused {
			e.checkEndConditions()
		}
	})
}

// OnAvatarStartSpeaking marks the patient as speaking.
func (e *Evaluator) OnAvatarStartSpeaking() {
	e.do(func() { e.setPhase(PhaseAvatarSpeaking) })
}

// OnAvatarFinishedSpeaking hands the floor back to the trainee.
func (e *Evaluator) OnAvatarFinishedSpeaking() {
	e.do(func() { e.setPhase(PhaseWaitingForUser) })
}

// OnTurnFailed returns the session to the trainee after a failed turn. The
// turn number is not changed.
func (e *Evaluator) OnTurnFailed() {
	e.do(func() { e.setPhase(PhaseWaitingForUser) })
}

// Record appends a line to the history, stamped with the current stress
// level and session time.
func (e *Evaluator) Record(speaker Speaker, text string) {
	if text == "" {
		return
	}
	e.do(func() {
		e.state.History = append(e.state.History, Entry{
			Speaker:     speaker,
			Text:        text,
			StressLevel: e.state.StressLevel,
			At:          e.state.Elapsed,
		})
	})
}

// ─── Time and pause ───────────────────────────────────────────────────────────

// Tick advances session time by dt and fails the session once the time limit
// is reached. Ticks are ignored while paused.
func (e *Evaluator) Tick(dt time.Duration) {
	e.do(func() {
		if e.state.Phase == PhasePaused || dt <= 0 {
			return
		}
		e.state.Elapsed += dt
		e.emit(events.TimerTick{Elapsed: e.state.Elapsed, Remaining: max(e.cfg.TimeLimit-e.state.Elapsed, 0)})
		if e.state.Elapsed >= e.cfg.TimeLimit {
			e.end(false, MessageTimeout)
		}
	})
}

// Pause freezes the session. It reports whether the session was paused by
// this call.
func (e *Evaluator) Pause() bool {
	var ok bool
	e.do(func() {
		if e.state.Phase == PhasePaused {
			return
		}
		e.resumeTo = e.state.Phase
		e.setPhase(PhasePaused)
		ok = true
	})
	return ok
}

// Resume restores the phase that was active before [Evaluator.Pause] (as
// updated by callbacks received while paused) and re-checks the end
// conditions. It reports whether the session was resumed by this call.
func (e *Evaluator) Resume() bool {
	var ok bool
	e.do(func() {
		if e.state.Phase != PhasePaused {
			return
		}
		e.transition(e.resumeTo)
		e.checkEndConditions()
		ok = true
	})
	return ok
}

// End terminates the session with the given outcome, e.g. when the trainee
// quits. It is a no-op if the session already ended.
func (e *Evaluator) End(success bool, message string) {
	e.do(func() { e.end(success, message) })
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// Phase returns the current phase.
func (e *Evaluator) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Phase
}

// Ended reports whether the session is Completed or Failed.
func (e *Evaluator) Ended() bool {
	return e.Phase().Terminal()
}

// Snapshot returns a copy of the current state.
func (e *Evaluator) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// Config returns the policy the evaluator was created with.
func (e *Evaluator) Config() Config { return e.cfg }

// Results evaluates the session as it stands. Success and Message are only
// meaningful once the session has ended.
func (e *Evaluator) Results() Results {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.results()
}

// ─── internals ────────────────────────────────────────────────────────────────

// do runs fn under the lock unless the session has ended, then publishes the
// events fn emitted.
func (e *Evaluator) do(fn func()) {
	e.mu.Lock()
	if e.state.Phase.Terminal() {
		e.mu.Unlock()
		return
	}
	fn()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, ev := range pending {
		e.pub.Publish(ev)
	}
}

func (e *Evaluator) emit(ev events.Event) {
	e.pending = append(e.pending, ev)
}

// setPhase moves to p. While paused, the transition is remembered for
// Resume instead.
func (e *Evaluator) setPhase(p Phase) {
	if e.state.Phase == PhasePaused && p != PhasePaused && !p.Terminal() {
		e.resumeTo = p
		return
	}
	e.transition(p)
}

func (e *Evaluator) transition(p Phase) {
	cur := e.state.Phase
	if cur == p {
		return
	}
	e.state.Phase = p
	e.emit(events.PhaseChanged{From: cur.String(), To: p.String()})
	slog.Debug("session: phase changed", "session_id", e.state.SessionID, "from", cur, "to", p)
}

func (e *Evaluator) checkEndConditions() {
	s := e.state
	switch {
	case s.StressLevel <= e.cfg.MinStressForSuccess && s.TurnNumber >= e.cfg.MinTurnsForCompletion:
		e.end(true, MessageSuccess)
	case s.StressLevel >= e.cfg.MaxStressForFailure:
		e.end(false, MessageAbandoned)
	}
}

func (e *Evaluator) end(success bool, message string) {
	if e.state.Phase.Terminal() {
		return
	}
	e.success = success
	e.message = message
	if success {
		e.setPhase(PhaseCompleted)
	} else {
		e.setPhase(PhaseFailed)
	}

	r := e.results()
	e.emit(events.SessionEnded{
		SessionID:     r.SessionID,
		Success:       r.Success,
		Message:       r.Message,
		InitialStress: r.InitialStress,
		FinalStress:   r.FinalStress,
		Turns:         r.Turns,
		Elapsed:       r.Elapsed,
		Emotions:      r.Emotions,
		Score:         r.Score,
		Grade:         string(r.Grade),
		Feedback:      r.Feedback,
	})
	slog.Info("session: ended",
		"session_id", r.SessionID,
		"success", success,
		"message", message,
		"turns", r.Turns,
		"stress", r.FinalStress,
		"elapsed", r.Elapsed,
		"grade", r.Grade,
	)
}

func (e *Evaluator) results() Results {
	s := e.state.clone()
	return Evaluate(Stats{
		SessionID:     s.SessionID,
		Success:       e.success,
		Message:       e.message,
		InitialStress: s.InitialStress,
		FinalStress:   s.StressLevel,
		Turns:         s.TurnNumber,
		Elapsed:       s.Elapsed,
		Emotions:      s.Emotions,
	})
}
