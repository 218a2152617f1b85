// Package conversation implements the turn controller of a training session:
// push-to-talk capture, upload of the trainee's turn, playback of the
// patient's reply, pause handling, and the bookkeeping that feeds the session
// evaluator.
//
// All session state is owned by the goroutine running [Controller.Run].
// Recorder starts, backend exchanges, playback and timers run elsewhere and
// post their results back to that goroutine, so the state machine itself
// never blocks and never needs a lock.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/consultorio/internal/clock"
	"github.com/MrWong99/consultorio/internal/events"
	"github.com/MrWong99/consultorio/internal/observe"
	"github.com/MrWong99/consultorio/internal/session"
	"github.com/MrWong99/consultorio/pkg/audio"
	"github.com/MrWong99/consultorio/pkg/backend"
)

const (
	// DefaultMinRecording is the shortest turn the controller uploads.
	// Releasing earlier keeps recording until this much audio exists.
	DefaultMinRecording = time.Second

	// DefaultOpeningLine is what the patient says when a session starts.
	DefaultOpeningLine = "No sé qué hacer... todo me supera últimamente"

	// DefaultOpeningFallback is how long the opening line is "spoken" when
	// it cannot be synthesized or played.
	DefaultOpeningFallback = 3 * time.Second

	// DefaultTickInterval is how often session time advances.
	DefaultTickInterval = time.Second

	inboxSize = 64
)

// Recorder is the capture side of [audio.Recorder].
type Recorder interface {
	Available() bool
	Start(ctx context.Context, opts audio.CaptureOptions) (*audio.Handle, error)
	Stop(h *audio.Handle) (audio.Buffer, error)
	Cancel(h *audio.Handle)
}

var _ Recorder = (*audio.Recorder)(nil)

// Config holds the controller's tuning.
type Config struct {
	// Session is the end-of-session policy handed to every evaluator.
	Session session.Config

	// Capture is passed to every [Recorder.Start].
	Capture audio.CaptureOptions

	MinRecording time.Duration

	// OpeningLine is spoken by the patient at session start. Empty disables
	// it and the trainee may talk right away.
	OpeningLine string

	OpeningFallback time.Duration

	TickInterval time.Duration
}

// DefaultConfig returns the standard controller configuration.
func DefaultConfig() Config {
	return Config{
		Session:         session.DefaultConfig(),
		MinRecording:    DefaultMinRecording,
		OpeningLine:     DefaultOpeningLine,
		OpeningFallback: DefaultOpeningFallback,
		TickInterval:    DefaultTickInterval,
	}
}

func (c *Config) applyDefaults() {
	if c.MinRecording <= 0 {
		c.MinRecording = DefaultMinRecording
	}
	if c.OpeningFallback <= 0 {
		c.OpeningFallback = DefaultOpeningFallback
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
}

// Option is a functional option for [New].
type Option func(*Controller)

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithPublisher sets where session events go. Defaults to [events.Discard].
func WithPublisher(pub events.Publisher) Option {
	return func(c *Controller) { c.pub = pub }
}

// WithMetrics sets the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithFallbackPlayer sets the player used for the opening line when it cannot
// be synthesized or played. Defaults to a [audio.SimulatedPlayer] lasting
// Config.OpeningFallback.
func WithFallbackPlayer(p audio.Player) Option {
	return func(c *Controller) { c.fallback = p }
}

// Controller sequences the turns of a training session.
type Controller struct {
	cfg      Config
	api      backend.API
	rec      Recorder
	player   audio.Player
	fallback audio.Player
	clock    clock.Clock
	pub      events.Publisher
	metrics  *observe.Metrics

	inbox chan message
	done  chan struct{}

	// Published view, written by the loop.
	mu      sync.Mutex
	ev      *session.Evaluator
	state   State
	mic     MicState
	running bool

	// Loop-owned.
	gen        int
	sessCtx    context.Context
	sessCancel context.CancelFunc
	starting   bool
	ended      bool
	paused     bool
	prior      State
	processing bool

	capGen       int
	handle       *audio.Handle
	stopWanted   bool
	recStart     time.Time
	deferredStop clock.Timer

	tickTimer clock.Timer
	tickSeq   int
	lastTick  time.Time

	pendingPlay *reply
	playCancel  context.CancelFunc

	turnCtx   context.Context
	turnSpan  trace.Span
	turnStart time.Time
}

// New creates a Controller. The session starts when [Controller.Run] is
// called.
func New(api backend.API, rec Recorder, player audio.Player, cfg Config, opts ...Option) (*Controller, error) {
	if api == nil || rec == nil || player == nil {
		return nil, errors.New("conversation: backend, recorder and player are required")
	}
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	c := &Controller{
		cfg:    cfg,
		api:    api,
		rec:    rec,
		player: player,
		clock:  clock.Real{},
		pub:    events.Discard,
		inbox:  make(chan message, inboxSize),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.fallback == nil {
		c.fallback = &audio.SimulatedPlayer{Fixed: cfg.OpeningFallback}
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// ─── Public API ───────────────────────────────────────────────────────────────

// Run starts a session and processes inputs until ctx is cancelled. It must
// be called at most once.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("conversation: controller already running")
	}
	c.running = true
	c.mu.Unlock()
	defer close(c.done)

	c.beginSession(ctx)
	for {
		select {
		case <-ctx.Done():
			c.endSession()
			return nil
		case m := <-c.inbox:
			c.dispatch(ctx, m)
			c.checkEnded()
		}
	}
}

// Input queues a trainee input. It never blocks; when the queue is full the
// input is dropped.
func (c *Controller) Input(ev InputEvent) {
	select {
	case c.inbox <- ev:
	default:
		slog.Warn("conversation: input queue full, dropping input", "source", ev.Source, "action", ev.Action)
	}
}

// Restart ends the current session, as interrupted unless it already
// ended, and starts a new one.
func (c *Controller) Restart() {
	c.post(restartMsg{})
}

// SetSessionPolicy replaces the end-of-session policy. The running session
// keeps the policy it started with; the next one uses cfg.
func (c *Controller) SetSessionPolicy(cfg session.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.post(call{fn: func() { c.cfg.Session = cfg }, done: make(chan struct{})})
	return nil
}

// State returns the turn state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MicState returns the microphone indicator state.
func (c *Controller) MicState() MicState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mic
}

// Session returns a snapshot of the current session. ok is false before the
// first session has started.
func (c *Controller) Session() (st session.State, ok bool) {
	ev := c.evaluator()
	if ev == nil {
		return session.State{}, false
	}
	return ev.Snapshot(), true
}

// Results evaluates the current session.
func (c *Controller) Results() (session.Results, bool) {
	ev := c.evaluator()
	if ev == nil {
		return session.Results{}, false
	}
	return ev.Results(), true
}

// Pause queues a pause, e.g. when the window loses focus.
func (c *Controller) Pause() { c.Input(InputEvent{Source: SourceController, Action: ActionPause}) }

// Resume queues a resume.
func (c *Controller) Resume() { c.Input(InputEvent{Source: SourceController, Action: ActionResume}) }

func (c *Controller) evaluator() *session.Evaluator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ev
}

// ─── Messages ─────────────────────────────────────────────────────────────────

type message any

type (
	restartMsg struct{}

	sessionStarted struct {
		gen   int
		start *backend.SessionStart
		err   error
	}

	captureStarted struct {
		gen    int
		handle *audio.Handle
		err    error
	}

	deferredStopMsg struct{ gen int }

	tickMsg struct{ seq int }

	uploadDone struct {
		gen int
		res *backend.TurnResult
		err error
	}

	playbackDone struct {
		gen   int
		stage string
		err   error
	}

	// call runs fn on the loop goroutine and closes done.
	call struct {
		fn   func()
		done chan struct{}
	}
)

// post delivers m to the loop, giving up once the loop has exited.
func (c *Controller) post(m message) {
	select {
	case c.inbox <- m:
	case <-c.done:
	}
}

// inLoop runs fn on the loop goroutine and waits for it.
func (c *Controller) inLoop(fn func()) {
	done := make(chan struct{})
	c.post(call{fn: fn, done: done})
	select {
	case <-done:
	case <-c.done:
	}
}

func (c *Controller) dispatch(ctx context.Context, m message) {
	switch m := m.(type) {
	case InputEvent:
		c.handleInput(m)
	case restartMsg:
		c.endSession()
		c.beginSession(ctx)
	case sessionStarted:
		c.onSessionStarted(m)
	case captureStarted:
		c.onCaptureStarted(m)
	case deferredStopMsg:
		c.onDeferredStop(m)
	case tickMsg:
		c.onTick(m)
	case uploadDone:
		c.onUploadDone(m)
	case playbackDone:
		c.onPlaybackDone(m)
	case call:
		m.fn()
		close(m.done)
	}
}

func (c *Controller) handleInput(in InputEvent) {
	slog.Debug("conversation: input", "source", in.Source, "action", in.Action)
	switch in.Action {
	case ActionTalkPress:
		c.press()
	case ActionTalkRelease:
		c.release()
	case ActionTalkToggle:
		if c.state == StateRecording {
			c.release()
		} else {
			c.press()
		}
	case ActionPauseToggle:
		if c.paused {
			c.resume()
		} else {
			c.pause()
		}
	case ActionPause:
		c.pause()
	case ActionResume:
		c.resume()
	}
}

// ─── Session lifecycle ────────────────────────────────────────────────────────

// beginSession asks the backend for a new session. The loop keeps running
// while the request is in flight; inputs are ignored until
// onSessionStarted has built the evaluator.
func (c *Controller) beginSession(ctx context.Context) {
	c.gen++
	c.sessCtx, c.sessCancel = context.WithCancel(ctx)
	c.starting = true

	sessCtx, gen := c.sessCtx, c.gen
	go func() {
		start, err := c.api.StartSession(sessCtx)
		c.post(sessionStarted{gen: gen, start: start, err: err})
	}()
}

func (c *Controller) onSessionStarted(m sessionStarted) {
	if m.gen != c.gen || !c.starting {
		return
	}
	c.starting = false
	c.ended = false
	c.paused = false
	c.processing = false
	c.pendingPlay = nil

	scfg := c.cfg.Session
	id := ""
	switch {
	case m.err != nil:
		slog.Warn("conversation: backend session unavailable, continuing offline", "err", m.err)
	case m.start == nil || m.start.SessionID == "":
		slog.Warn("conversation: backend returned no session id, continuing offline")
	default:
		id = m.start.SessionID
		// Zero means the backend did not send a level.
		if m.start.InitialStress > session.MinStress && m.start.InitialStress <= session.MaxStress {
			scfg.InitialStress = m.start.InitialStress
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	ev := session.NewEvaluator(id, scfg, c.pub)
	c.mu.Lock()
	c.ev = ev
	c.mu.Unlock()

	c.metrics.ActiveSessions.Add(c.sessCtx, 1)
	c.metrics.StressLevel.Record(c.sessCtx, int64(ev.Snapshot().StressLevel))
	slog.Info("conversation: session started", "session_id", id, "initial_stress", scfg.InitialStress)

	c.lastTick = c.clock.Now()
	c.scheduleTick()

	if c.cfg.OpeningLine == "" {
		ev.OnAvatarFinishedSpeaking()
		c.setState(StateIdle)
		return
	}
	c.processing = true
	c.turnCtx = c.sessCtx
	c.startPlayback(reply{text: c.cfg.OpeningLine, stress: ev.Snapshot().StressLevel, opening: true})
}

// endSession tears down the running session: in-flight work is cancelled and
// late results are discarded. A session that has not reached an end
// condition is ended as interrupted so its results are still published.
func (c *Controller) endSession() {
	c.starting = false
	if c.ev != nil {
		if !c.ended {
			if !c.paused {
				c.accumulateTime()
			}
			c.ev.End(false, session.MessageInterrupted)
			c.checkEnded()
		}
		c.cancelCapture()
		c.stopTick()
		if c.playCancel != nil {
			c.playCancel()
			c.playCancel = nil
		}
		c.finishTurnSpan(context.Canceled)
	}
	if c.sessCancel != nil {
		c.sessCancel()
	}
	c.gen++
	c.ended = true
}

// checkEnded reacts once to the evaluator reaching a terminal phase.
func (c *Controller) checkEnded() {
	if c.ev == nil || c.ended || !c.ev.Ended() {
		return
	}
	c.ended = true
	c.cancelCapture()
	c.stopTick()
	if c.state == StateRecording {
		c.setState(StateIdle)
	}

	r := c.ev.Results()
	ctx := context.Background()
	c.metrics.ActiveSessions.Add(ctx, -1)
	c.metrics.RecordSessionOutcome(ctx, r.Success, string(r.Grade))
	c.updateMic()
}

// ─── Pause ────────────────────────────────────────────────────────────────────

func (c *Controller) pause() {
	if c.ev == nil || c.ended || c.paused {
		return
	}
	prior := c.state
	if prior == StateRecording {
		c.cancelCapture()
		prior = StateIdle
	}
	c.accumulateTime()
	c.stopTick()
	if c.ev.Ended() {
		return
	}

	c.paused = true
	c.prior = prior
	c.ev.Pause()
	c.setState(StatePaused)
	slog.Info("conversation: paused", "resume_to", prior)
}

func (c *Controller) resume() {
	if !c.paused {
		return
	}
	c.paused = false
	c.ev.Resume()
	c.lastTick = c.clock.Now()
	c.scheduleTick()
	c.setState(c.prior)
	slog.Info("conversation: resumed", "state", c.prior)

	if r := c.pendingPlay; r != nil {
		c.pendingPlay = nil
		c.startPlayback(*r)
	}
}

// enter moves to s, or makes s the state to resume to while paused.
func (c *Controller) enter(s State) {
	if c.paused {
		c.prior = s
		return
	}
	c.setState(s)
}

// ─── Time ─────────────────────────────────────────────────────────────────────

// scheduleTick arms the next tick. Every arm or stop invalidates ticks that
// are already queued.
func (c *Controller) scheduleTick() {
	c.tickSeq++
	seq := c.tickSeq
	c.tickTimer = c.clock.AfterFunc(c.cfg.TickInterval, func() { c.post(tickMsg{seq: seq}) })
}

func (c *Controller) stopTick() {
	c.tickSeq++
	if c.tickTimer != nil {
		c.tickTimer.Stop()
		c.tickTimer = nil
	}
}

func (c *Controller) onTick(m tickMsg) {
	if m.seq != c.tickSeq || c.ended || c.paused {
		return
	}
	c.tickTimer = nil
	c.accumulateTime()
	if !c.ev.Ended() {
		c.scheduleTick()
	}
}

// accumulateTime hands the time since the last tick to the evaluator.
func (c *Controller) accumulateTime() {
	now := c.clock.Now()
	dt := now.Sub(c.lastTick)
	c.lastTick = now
	c.ev.Tick(dt)
}

// ─── Published state ──────────────────────────────────────────────────────────

func (c *Controller) setState(s State) {
	c.mu.Lock()
	from := c.state
	c.state = s
	c.mu.Unlock()
	if from != s {
		c.pub.Publish(events.StateChanged{From: from.String(), To: s.String()})
		slog.Debug("conversation: state changed", "from", from, "to", s)
	}
	c.updateMic()
}

func (c *Controller) updateMic() {
	next := MicClosed
	if !c.ended && !c.paused {
		switch c.state {
		case StateIdle, StateRecording:
			if !c.processing {
				next = MicOpen
			}
		case StateUploading:
			next = MicProcessing
		}
	}

	c.mu.Lock()
	prev := c.mic
	c.mic = next
	c.mu.Unlock()
	if prev != next {
		c.pub.Publish(events.MicStateChanged{State: next.String()})
	}
}

// ─── Turn bookkeeping ─────────────────────────────────────────────────────────

// failTurn reports a failed turn and hands the floor back to the trainee.
func (c *Controller) failTurn(stage string, err error, soft bool) {
	ctx := c.turnContext()
	if soft {
		observe.Logger(ctx).Info("conversation: turn discarded", "stage", stage, "err", err)
	} else {
		observe.Logger(ctx).Warn("conversation: turn failed", "stage", stage, "err", err)
	}
	c.pub.Publish(events.TurnFailed{Stage: stage, Error: err.Error(), Soft: soft})
	c.metrics.RecordTurnFailure(ctx, stage, soft)
	c.ev.OnTurnFailed()
}

func (c *Controller) turnContext() context.Context {
	if c.turnCtx != nil {
		return c.turnCtx
	}
	if c.sessCtx != nil {
		return c.sessCtx
	}
	return context.Background()
}

func (c *Controller) startTurnSpan() {
	snap := c.ev.Snapshot()
	c.turnCtx, c.turnSpan = observe.StartSpan(c.sessCtx, "conversation.turn",
		trace.WithAttributes(
			attribute.String("consultorio.session_id", snap.SessionID),
			attribute.Int("consultorio.turn", snap.TurnNumber+1),
			attribute.Int("consultorio.stress_level", snap.StressLevel),
		),
	)
	c.turnStart = c.clock.Now()
}

// finishTurnSpan ends the current turn's span, if any, and records its
// duration when it completed.
func (c *Controller) finishTurnSpan(err error) {
	if c.turnSpan == nil {
		c.turnCtx = nil
		return
	}
	if err == nil {
		c.metrics.TurnDuration.Record(c.turnCtx, c.clock.Now().Sub(c.turnStart).Seconds())
	}
	observe.EndSpan(c.turnSpan, err)
	c.turnSpan = nil
	c.turnCtx = nil
}
