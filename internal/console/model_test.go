package console

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/consultorio/internal/conversation"
	"github.com/MrWong99/consultorio/internal/events"
	"github.com/MrWong99/consultorio/internal/session"
)

type fakeSession struct {
	inputs   []conversation.InputEvent
	restarts int
	snap     session.State
}

func (f *fakeSession) Input(ev conversation.InputEvent) { f.inputs = append(f.inputs, ev) }
func (f *fakeSession) Restart()                         { f.restarts++ }
func (f *fakeSession) State() conversation.State        { return conversation.StateIdle }
func (f *fakeSession) MicState() conversation.MicState  { return conversation.MicOpen }
func (f *fakeSession) Session() (session.State, bool)   { return f.snap, f.snap.SessionID != "" }

func newModel(t *testing.T) (Model, *fakeSession) {
	t.Helper()
	fs := &fakeSession{snap: session.State{SessionID: "s-1", StressLevel: 7, Phase: session.PhaseWaitingForUser}}
	return New(fs, make(chan events.Envelope)), fs
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func event(ev events.Event) tea.Msg {
	return eventMsg{env: events.Envelope{At: time.Now(), Event: ev}}
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNew_PullsSnapshot(t *testing.T) {
	m, _ := newModel(t)
	if m.stress != 7 || m.sessionID != "s-1" || m.phase != "waiting_for_user" {
		t.Errorf("model = stress %d, id %q, phase %q", m.stress, m.sessionID, m.phase)
	}
	if m.mic != conversation.MicOpen {
		t.Errorf("mic = %v, want open", m.mic)
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		key  tea.KeyMsg
		want conversation.Action
	}{
		{key(" "), conversation.ActionTalkToggle},
		{key("p"), conversation.ActionPauseToggle},
		{tea.KeyMsg{Type: tea.KeyEsc}, conversation.ActionPauseToggle},
	}
	for _, tt := range tests {
		t.Run(tt.key.String(), func(t *testing.T) {
			m, fs := newModel(t)
			update(t, m, tt.key)
			if len(fs.inputs) != 1 {
				t.Fatalf("inputs = %v", fs.inputs)
			}
			want := conversation.InputEvent{Source: conversation.SourceKeyboard, Action: tt.want}
			if fs.inputs[0] != want {
				t.Errorf("input = %+v, want %+v", fs.inputs[0], want)
			}
		})
	}
}

func TestKeys_RestartAndQuit(t *testing.T) {
	m, fs := newModel(t)
	m = update(t, m, key("r"))
	if fs.restarts != 0 {
		t.Errorf("restarts = %d, want 0 while the session runs", fs.restarts)
	}

	m = update(t, m, event(events.SessionEnded{SessionID: "s-1", Message: session.MessageTimeout, Grade: "C"}))
	m = update(t, m, key("r"))
	if fs.restarts != 1 {
		t.Errorf("restarts = %d, want 1 from the results screen", fs.restarts)
	}

	next, cmd := m.Update(key("q"))
	if !next.(Model).quitting {
		t.Error("q should quit")
	}
	if cmd == nil {
		t.Fatal("q should return tea.Quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q command is not tea.Quit")
	}
}

func TestEvents_UpdateModel(t *testing.T) {
	m, _ := newModel(t)
	m = update(t, m, event(events.StateChanged{From: "idle", To: "recording"}))
	if m.state != conversation.StateRecording {
		t.Errorf("state = %v", m.state)
	}
	m = update(t, m, event(events.MicStateChanged{State: "processing"}))
	if m.mic != conversation.MicProcessing {
		t.Errorf("mic = %v", m.mic)
	}
	m = update(t, m, event(events.EmotionClassified{
		Turn: 1, Transcription: "Estoy aquí para ayudarle", Emotion: "calm", StressLevel: 6, Reply: "Gracias...",
	}))
	if m.turn != 1 || m.stress != 6 || m.emotion != "calm" {
		t.Errorf("after classification: turn %d, stress %d, emotion %q", m.turn, m.stress, m.emotion)
	}
	m = update(t, m, event(events.TimerTick{Elapsed: 65 * time.Second, Remaining: 835 * time.Second}))
	m = update(t, m, event(events.ConnectivityChanged{Connected: false}))
	m = update(t, m, event(events.TurnFailed{Stage: conversation.StageUpload, Error: "timeout"}))

	view := m.View()
	for _, want := range []string{"6/10", "1:05", "13:55", "Estoy aquí para ayudarle", "Gracias...", "sin conexión", "inténtelo de nuevo"} {
		if !strings.Contains(view, want) {
			t.Errorf("view is missing %q:\n%s", want, view)
		}
	}
}

func TestView_StressBarCanBeHidden(t *testing.T) {
	fs := &fakeSession{snap: session.State{SessionID: "s-1", StressLevel: 7, Phase: session.PhaseWaitingForUser}}
	m := New(fs, make(chan events.Envelope), WithStressBar(false))

	view := m.View()
	if strings.Contains(view, "Estrés") || strings.Contains(view, "7/10") {
		t.Errorf("hidden stress bar is rendered:\n%s", view)
	}
	if !strings.Contains(view, "Micrófono") {
		t.Errorf("view is missing the other fields:\n%s", view)
	}

	m = update(t, m, event(events.DisplayChanged{ShowStressBar: true}))
	if view := m.View(); !strings.Contains(view, "Estrés") || !strings.Contains(view, "7/10") {
		t.Errorf("stress bar not shown after DisplayChanged:\n%s", view)
	}

	m = update(t, m, event(events.DisplayChanged{ShowStressBar: false}))
	if view := m.View(); strings.Contains(view, "Estrés") {
		t.Errorf("stress bar still shown after hiding:\n%s", view)
	}
}

func TestView_StressBarShownByDefault(t *testing.T) {
	m, _ := newModel(t)
	if view := m.View(); !strings.Contains(view, "Estrés") {
		t.Errorf("default view is missing the stress bar:\n%s", view)
	}
}

func TestEvents_ResultsScreen(t *testing.T) {
	m, _ := newModel(t)
	m = update(t, m, event(events.SessionEnded{
		SessionID: "s-1", Success: true, Message: session.MessageSuccess,
		InitialStress: 7, FinalStress: 2, Turns: 5, Elapsed: 3 * time.Minute,
		Emotions: []string{"calm"}, Score: 0.91, Grade: "A+", Feedback: "Excelente",
	}))
	if m.results == nil {
		t.Fatal("results not set")
	}
	view := m.View()
	for _, want := range []string{session.MessageSuccess, "Interacciones: 5", "A+"} {
		if !strings.Contains(view, want) {
			t.Errorf("results view is missing %q:\n%s", want, view)
		}
	}
}

func TestEvents_NewSessionClearsResults(t *testing.T) {
	m, fs := newModel(t)
	m = update(t, m, event(events.SessionEnded{SessionID: "s-1", Grade: "F"}))
	fs.snap = session.State{SessionID: "s-2", StressLevel: 7, Phase: session.PhaseAvatarSpeaking}
	m = update(t, m, event(events.PhaseChanged{From: "initializing", To: "avatar_speaking"}))
	if m.results != nil {
		t.Error("results should be cleared for a new session")
	}
	if m.sessionID != "s-2" {
		t.Errorf("sessionID = %q", m.sessionID)
	}
}

func TestClosedSubscriptionQuits(t *testing.T) {
	m, _ := newModel(t)
	next, cmd := m.Update(closedMsg{})
	if !next.(Model).quitting || cmd == nil {
		t.Error("closed subscription should quit")
	}
}

func TestListen(t *testing.T) {
	ch := make(chan events.Envelope, 1)
	ch <- events.Envelope{Event: events.AvatarFinishedSpeaking{}}
	if msg, ok := listen(ch)().(eventMsg); !ok || msg.env.Event.Kind() != "avatar_finished_speaking" {
		t.Errorf("listen() = %#v", msg)
	}
	close(ch)
	if _, ok := listen(ch)().(closedMsg); !ok {
		t.Error("listen on a closed channel should report closedMsg")
	}
}
