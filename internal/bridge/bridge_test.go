package bridge_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/consultorio/internal/bridge"
	"github.com/MrWong99/consultorio/internal/conversation"
	"github.com/MrWong99/consultorio/internal/events"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

type fakeSession struct {
	mu       sync.Mutex
	inputs   []conversation.InputEvent
	restarts int
	notify   chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{notify: make(chan struct{}, 16)}
}

func (f *fakeSession) Input(ev conversation.InputEvent) {
	f.mu.Lock()
	f.inputs = append(f.inputs, ev)
	f.mu.Unlock()
	f.notify <- struct{}{}
}

func (f *fakeSession) Restart() {
	f.mu.Lock()
	f.restarts++
	f.mu.Unlock()
	f.notify <- struct{}{}
}

func (f *fakeSession) State() conversation.State       { return conversation.StateIdle }
func (f *fakeSession) MicState() conversation.MicState { return conversation.MicOpen }

func (f *fakeSession) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.notify:
	case <-time.After(3 * time.Second):
		t.Fatal("session was not driven within timeout")
	}
}

type frame struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func dial(t *testing.T, bus *events.Bus, sess *fakeSession) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(bridge.New(bus, sess))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return f
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readGreeting consumes the state and mic frames sent on connect.
func readGreeting(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	if f := readFrame(t, conn); f.Type != "state_changed" || !strings.Contains(string(f.Data), `"to":"idle"`) {
		t.Fatalf("first frame = %+v", f)
	}
	if f := readFrame(t, conn); f.Type != "mic_state_changed" || !strings.Contains(string(f.Data), `"open"`) {
		t.Fatalf("second frame = %+v", f)
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestBridge_StreamsEvents(t *testing.T) {
	bus := events.NewBus()
	conn := dial(t, bus, newFakeSession())
	readGreeting(t, conn)

	bus.Publish(events.StressChanged{Previous: 7, Current: 6})

	f := readFrame(t, conn)
	if f.Type != "stress_changed" {
		t.Fatalf("type = %q, want stress_changed", f.Type)
	}
	if !strings.Contains(string(f.Data), "6") {
		t.Errorf("data = %s", f.Data)
	}
}

func TestBridge_CommandsBecomeRemoteInput(t *testing.T) {
	sess := newFakeSession()
	conn := dial(t, events.NewBus(), sess)
	readGreeting(t, conn)

	send(t, conn, `{"type":"talk_press"}`)
	sess.wait(t)
	send(t, conn, `{"type":"restart"}`)
	sess.wait(t)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.inputs) != 1 {
		t.Fatalf("inputs = %v", sess.inputs)
	}
	want := conversation.InputEvent{Source: conversation.SourceRemote, Action: conversation.ActionTalkPress}
	if sess.inputs[0] != want {
		t.Errorf("input = %+v, want %+v", sess.inputs[0], want)
	}
	if sess.restarts != 1 {
		t.Errorf("restarts = %d, want 1", sess.restarts)
	}
}

func TestBridge_RejectsUnknownCommand(t *testing.T) {
	sess := newFakeSession()
	conn := dial(t, events.NewBus(), sess)
	readGreeting(t, conn)

	send(t, conn, `{"type":"jump"}`)
	f := readFrame(t, conn)
	if f.Type != "error" || !strings.Contains(f.Message, "jump") {
		t.Errorf("reply = %+v, want error naming the command", f)
	}

	send(t, conn, `not json`)
	if f := readFrame(t, conn); f.Type != "error" {
		t.Errorf("reply = %+v, want error", f)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.inputs) != 0 {
		t.Errorf("rejected commands reached the session: %v", sess.inputs)
	}
}
