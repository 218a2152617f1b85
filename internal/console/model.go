// Package console is the terminal presentation of a training session: the
// patient's stress bar, the microphone ring, the session timer, the last
// exchange and the results screen.
//
// Terminals deliver key presses without releases, so the talk key toggles
// the recording (the same semantics as a single controller button).
package console

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/consultorio/internal/conversation"
	"github.com/MrWong99/consultorio/internal/events"
	"github.com/MrWong99/consultorio/internal/session"
)

// Session is the controller surface the console drives, satisfied by
// [*conversation.Controller].
type Session interface {
	Input(ev conversation.InputEvent)
	Restart()
	State() conversation.State
	MicState() conversation.MicState
	Session() (session.State, bool)
}

var _ Session = (*conversation.Controller)(nil)

// eventMsg delivers one session event to Update.
type eventMsg struct{ env events.Envelope }

// closedMsg reports that the event subscription ended.
type closedMsg struct{}

// Model is the root bubbletea model.
type Model struct {
	session Session
	events  <-chan events.Envelope

	// Conversation
	state conversation.State
	mic   conversation.MicState

	// Session
	sessionID string
	phase     string
	stress    int
	turn      int
	elapsed   time.Duration
	remaining time.Duration

	// Last exchange
	transcript string
	emotion    string
	reply      string
	speaking   bool

	// Status
	showStress bool
	connected  *bool
	notice    string
	results   *session.Results

	width    int
	quitting bool
}

// Option customises a [Model].
type Option func(*Model)

// WithStressBar shows or hides the stress bar. It is shown by default.
func WithStressBar(show bool) Option {
	return func(m *Model) { m.showStress = show }
}

// New creates a Model reading events from ch.
func New(s Session, ch <-chan events.Envelope, opts ...Option) Model {
	m := Model{
		session:    s,
		events:     ch,
		state:      s.State(),
		mic:        s.MicState(),
		showStress: true,
	}
	for _, o := range opts {
		o(&m)
	}
	m.refresh()
	return m
}

// Init starts listening for session events.
func (m Model) Init() tea.Cmd {
	return listen(m.events)
}

func listen(ch <-chan events.Envelope) tea.Cmd {
	return func() tea.Msg {
		env, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return eventMsg{env: env}
	}
}

// refresh pulls the session snapshot from the controller.
func (m *Model) refresh() {
	st, ok := m.session.Session()
	if !ok {
		return
	}
	if st.SessionID != m.sessionID {
		m.results = nil
		m.transcript, m.emotion, m.reply, m.notice = "", "", "", ""
	}
	m.sessionID = st.SessionID
	m.phase = st.Phase.String()
	m.stress = st.StressLevel
	m.turn = st.TurnNumber
	m.elapsed = st.Elapsed
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case eventMsg:
		m.apply(msg.env.Event)
		return m, listen(m.events)

	case closedMsg:
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	input := func(a conversation.Action) {
		m.session.Input(conversation.InputEvent{Source: conversation.SourceKeyboard, Action: a})
	}
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		m.quitting = true
		return m, tea.Quit
	case KeyTalk:
		input(conversation.ActionTalkToggle)
	case KeyPause, KeyEscape:
		input(conversation.ActionPauseToggle)
	case KeyRestart:
		// Only from the results screen.
		if m.results != nil {
			m.session.Restart()
		}
	}
	return m, nil
}

// apply folds one event into the model.
func (m *Model) apply(ev events.Event) {
	switch ev := ev.(type) {
	case events.StateChanged:
		if s, ok := parseState(ev.To); ok {
			m.state = s
		}
	case events.MicStateChanged:
		m.mic = parseMic(ev.State)
	case events.PhaseChanged:
		m.refresh()
		m.phase = ev.To
	case events.StressChanged:
		m.stress = ev.Current
	case events.TimerTick:
		m.elapsed, m.remaining = ev.Elapsed, ev.Remaining
	case events.UserAudioCaptured:
		m.notice = ""
		if ev.PossiblySilent {
			m.notice = "No se detectó voz; revise el micrófono."
		}
	case events.EmotionClassified:
		m.turn = ev.Turn
		m.transcript, m.emotion, m.reply = ev.Transcription, ev.Emotion, ev.Reply
		m.stress = ev.StressLevel
	case events.AvatarStartedSpeaking:
		m.speaking = true
	case events.AvatarFinishedSpeaking:
		m.speaking = false
	case events.TurnFailed:
		m.notice = failureNotice(ev)
	case events.ConnectivityChanged:
		c := ev.Connected
		m.connected = &c
	case events.DisplayChanged:
		m.showStress = ev.ShowStressBar
	case events.SessionEnded:
		r := session.Results{
			Stats: session.Stats{
				SessionID:     ev.SessionID,
				Success:       ev.Success,
				Message:       ev.Message,
				InitialStress: ev.InitialStress,
				FinalStress:   ev.FinalStress,
				Turns:         ev.Turns,
				Elapsed:       ev.Elapsed,
				Emotions:      ev.Emotions,
			},
			Score:    ev.Score,
			Grade:    session.Grade(ev.Grade),
			Feedback: ev.Feedback,
		}
		m.results = &r
	}
}

func failureNotice(ev events.TurnFailed) string {
	switch {
	case ev.Soft && ev.Stage == conversation.StageCapture:
		return "Grabación demasiado corta; mantenga pulsado para hablar."
	case ev.Stage == conversation.StageCapture:
		return "Micrófono no disponible."
	case ev.Stage == conversation.StageUpload, ev.Stage == conversation.StageEncode:
		return "No se pudo procesar el turno; inténtelo de nuevo."
	default:
		return "El paciente no pudo responder con voz."
	}
}

func parseState(s string) (conversation.State, bool) {
	for st := conversation.StateIdle; st <= conversation.StatePaused; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

func parseMic(s string) conversation.MicState {
	switch s {
	case conversation.MicOpen.String():
		return conversation.MicOpen
	case conversation.MicProcessing.String():
		return conversation.MicProcessing
	default:
		return conversation.MicClosed
	}
}

// Run shows the console until the user quits, ctx ends, or the
// subscription closes. Quitting returns nil; the caller decides whether
// that ends the process.
func Run(ctx context.Context, s Session, ch <-chan events.Envelope, opts ...Option) error {
	p := tea.NewProgram(New(s, ch, opts...), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
