// Package bridge exposes a training session over WebSocket so that a remote
// presentation (the headset HUD, an instructor's browser) can follow the
// session and drive it.
//
// Every session event is pushed to each client as the JSON envelope produced
// by [events.Marshal]. Clients send commands as {"type": "<action>"} where the
// action is one of the conversation actions (talk_press, talk_release,
// talk_toggle, pause_toggle, pause, resume) or "restart". Commands are queued
// as [conversation.SourceRemote] input.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/consultorio/internal/conversation"
	"github.com/MrWong99/consultorio/internal/events"
	"github.com/MrWong99/consultorio/internal/observe"
)

const (
	// clientBuffer is the per-client event backlog. A client that falls
	// further behind loses events rather than stalling the session.
	clientBuffer = 256

	writeTimeout = 5 * time.Second

	// maxCommandSize bounds a single client frame.
	maxCommandSize = 4 << 10

	// CommandRestart discards the running session and starts a new one.
	CommandRestart = "restart"
)

// Subscriber is the event source, satisfied by [*events.Bus].
type Subscriber interface {
	Subscribe(buffer int) (<-chan events.Envelope, func())
}

// Session is the controller surface the bridge drives, satisfied by
// [*conversation.Controller].
type Session interface {
	Input(ev conversation.InputEvent)
	Restart()
	State() conversation.State
	MicState() conversation.MicState
}

var (
	_ Subscriber = (*events.Bus)(nil)
	_ Session    = (*conversation.Controller)(nil)
)

// command is a client frame.
type command struct {
	Type string `json:"type"`
}

// errorFrame reports a rejected command back to its sender.
type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Option is a functional option for [New].
type Option func(*Server)

// WithOriginPatterns allows cross-origin clients whose host matches one of
// patterns (see [websocket.AcceptOptions]).
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithMetrics sets the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithNow overrides the clock used to stamp the greeting frames.
func WithNow(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server is an [http.Handler] serving the WebSocket endpoint.
type Server struct {
	bus     Subscriber
	session Session
	origins []string
	metrics *observe.Metrics
	now     func() time.Time
}

var _ http.Handler = (*Server)(nil)

// New creates a bridge between bus and session.
func New(bus Subscriber, session Session, opts ...Option) *Server {
	s := &Server{bus: bus, session: session, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// ServeHTTP upgrades the request and serves the client until it disconnects
// or the request context ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		slog.Warn("bridge: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(maxCommandSize)

	// Subscribe before the greeting so nothing published in between is lost.
	ch, unsubscribe := s.bus.Subscribe(clientBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.metrics.BridgeClients.Add(ctx, 1)
	defer s.metrics.BridgeClients.Add(context.WithoutCancel(ctx), -1)

	log := slog.With("remote", r.RemoteAddr)
	log.Info("bridge: client connected")

	replies := make(chan []byte, 8)
	go func() {
		defer cancel()
		s.readLoop(ctx, conn, replies, log)
	}()

	err = s.writeLoop(ctx, conn, ch, replies)
	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		err = nil
	case errors.Is(err, context.Canceled):
		err = nil
	}
	if err != nil {
		log.Warn("bridge: client dropped", "err", err)
		conn.Close(websocket.StatusInternalError, "write failed")
		return
	}
	log.Info("bridge: client disconnected")
	conn.Close(websocket.StatusNormalClosure, "")
}

// writeLoop sends the greeting and then every event and command reply until
// ctx ends.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, ch <-chan events.Envelope, replies <-chan []byte) error {
	now := s.now()
	greeting := []events.Event{
		events.StateChanged{From: s.session.State().String(), To: s.session.State().String()},
		events.MicStateChanged{State: s.session.MicState().String()},
	}
	for _, ev := range greeting {
		if err := s.send(ctx, conn, events.Envelope{At: now, Event: ev}); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.send(ctx, conn, env); err != nil {
				return err
			}
		case msg := <-replies:
			if err := write(ctx, conn, msg); err != nil {
				return err
			}
		}
	}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, env events.Envelope) error {
	data, err := events.Marshal(env)
	if err != nil {
		slog.Error("bridge: marshal event", "type", env.Event.Kind(), "err", err)
		return nil
	}
	return write(ctx, conn, data)
}

func write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// readLoop applies client commands until the connection fails.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, replies chan<- []byte, log *slog.Logger) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if err := s.apply(data); err != nil {
			log.Debug("bridge: command rejected", "err", err)
			msg, _ := json.Marshal(errorFrame{Type: "error", Message: err.Error()})
			select {
			case replies <- msg:
			default:
			}
		}
	}
}

// apply decodes and executes one client command.
func (s *Server) apply(data []byte) error {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return errors.New("bridge: command is not a JSON object")
	}
	if cmd.Type == CommandRestart {
		s.session.Restart()
		return nil
	}
	action, err := conversation.ParseAction(cmd.Type)
	if err != nil {
		return err
	}
	s.session.Input(conversation.InputEvent{Source: conversation.SourceRemote, Action: action})
	return nil
}
