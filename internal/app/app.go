// Package app wires all consultorio subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the turn controller together with the local HTTP
// surface, the backend monitor and the config watcher, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithBackend, WithPlatform, WithPlayer, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/consultorio/internal/bridge"
	"github.com/MrWong99/consultorio/internal/config"
	"github.com/MrWong99/consultorio/internal/console"
	"github.com/MrWong99/consultorio/internal/conversation"
	"github.com/MrWong99/consultorio/internal/events"
	"github.com/MrWong99/consultorio/internal/health"
	"github.com/MrWong99/consultorio/internal/journal"
	"github.com/MrWong99/consultorio/internal/observe"
	"github.com/MrWong99/consultorio/internal/resilience"
	"github.com/MrWong99/consultorio/pkg/audio"
	"github.com/MrWong99/consultorio/pkg/backend"
)

// SimulatedOutput is the name of the output used when the configured player
// keeps failing.
const SimulatedOutput = "simulated"

// serverShutdownTimeout bounds how long in-flight HTTP requests may take
// once Run is stopping.
const serverShutdownTimeout = 5 * time.Second

// errConsoleQuit stops the run group when the trainee leaves the console.
var errConsoleQuit = errors.New("console closed")

// App owns all subsystem lifetimes and runs one training station.
type App struct {
	cfg      *config.Config
	registry *config.Registry
	level    *slog.LevelVar
	metrics  *observe.Metrics
	bus      *events.Bus

	// Subsystems, initialised in New and torn down in Shutdown.
	api      backend.API
	client   *backend.Client
	guarded  *resilience.GuardedBackend
	platform audio.Platform
	player   audio.Player
	outputs  *resilience.PlayerFallback
	recorder *audio.Recorder
	ctrl     *conversation.Controller
	health   *health.Handler
	bridge   *bridge.Server
	watcher  *config.Watcher
	journal  *journal.FileStore

	ctrlOpts []conversation.Option
	console  bool

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackend injects a backend instead of creating an HTTP client from
// config. Connectivity monitoring only runs against the HTTP client.
func WithBackend(api backend.API) Option {
	return func(a *App) { a.api = api }
}

// WithPlatform injects the capture platform instead of creating it through
// the registry.
func WithPlatform(p audio.Platform) Option {
	return func(a *App) { a.platform = p }
}

// WithPlayer injects the primary audio output instead of creating it
// through the registry.
func WithPlayer(p audio.Player) Option {
	return func(a *App) { a.player = p }
}

// WithRegistry sets the driver registry used for audio.input and
// audio.player.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets hot reloads change the verbosity of the handler that
// reads lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithWatcher runs w alongside the controller. Its onChange callback should
// call [App.Reload].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithConsole shows the terminal console while running. Quitting the
// console ends Run.
func WithConsole() Option {
	return func(a *App) { a.console = true }
}

// WithControllerOptions passes extra options to [conversation.New].
func WithControllerOptions(opts ...conversation.Option) Option {
	return func(a *App) { a.ctrlOpts = append(a.ctrlOpts, opts...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. cfg is copied and
// completed with defaults. Use Option functions to inject test doubles for
// any subsystem.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	c := *cfg
	c.ApplyDefaults()

	a := &App{cfg: &c}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.bus = events.NewBus()

	// ── 1. Backend ───────────────────────────────────────────────────────
	if err := a.initBackend(); err != nil {
		return nil, fmt.Errorf("app: init backend: %w", err)
	}

	// ── 2. Audio ─────────────────────────────────────────────────────────
	if err := a.initAudio(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	// ── 3. Turn controller ───────────────────────────────────────────────
	ctrlOpts := append([]conversation.Option{
		conversation.WithPublisher(a.bus),
		conversation.WithMetrics(a.metrics),
	}, a.ctrlOpts...)
	ctrl, err := conversation.New(a.guarded, a.recorder, a.outputs, a.cfg.ControllerConfig(), ctrlOpts...)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init controller: %w", err)
	}
	a.ctrl = ctrl

	// ── 4. Local surface ─────────────────────────────────────────────────
	a.health = health.New(health.Backend(a.guarded), health.Microphone(a.recorder))
	a.bridge = bridge.New(a.bus, a.ctrl, bridge.WithMetrics(a.metrics))
	if path := a.cfg.Server.ResultsFile; path != "" {
		a.journal = journal.NewFileStore(path)
	}

	slog.Info("app initialised",
		"backend", a.cfg.Backend.BaseURL,
		"input", a.cfg.Audio.Input,
		"outputs", a.outputs.Outputs(),
		"listen", a.cfg.Server.ListenAddr,
	)
	return a, nil
}

// initBackend creates the HTTP client (unless one was injected) and wraps
// it in the circuit breaker.
func (a *App) initBackend() error {
	if a.api == nil {
		client, err := backend.New(a.cfg.Backend.BaseURL, a.cfg.BackendOptions()...)
		if err != nil {
			return err
		}
		a.client = client
		a.api = client
	}
	a.guarded = resilience.NewGuardedBackend(a.api, a.cfg.BreakerConfig(), a.metrics)
	if a.client != nil {
		a.client.OnConnectivityChange(a.onConnectivity)
	}
	return nil
}

// initAudio opens the capture platform and the speaker through the registry
// unless they were injected. The configured player is backed by a
// simulated output.
func (a *App) initAudio() error {
	if a.platform == nil {
		if a.registry == nil {
			return errors.New("no driver registry for audio input")
		}
		p, closeFn, err := a.registry.CreateInput(a.cfg.Audio)
		if err != nil {
			return err
		}
		a.platform = p
		a.addCloser(closeFn)
	}
	if a.player == nil {
		if a.registry == nil {
			return errors.New("no driver registry for audio player")
		}
		p, closeFn, err := a.registry.CreatePlayer(a.cfg.Audio)
		if err != nil {
			return err
		}
		a.player = p
		a.addCloser(closeFn)
	}

	a.outputs = resilience.NewPlayerFallback(a.player, a.cfg.Audio.Player, resilience.FallbackConfig{})
	if a.cfg.Audio.Player != SimulatedOutput {
		a.outputs.AddFallback(SimulatedOutput, &audio.SimulatedPlayer{})
	}
	a.outputs.SetVolume(a.cfg.PlaybackVolume())
	a.recorder = audio.NewRecorder(a.platform, a.cfg.RecorderOptions()...)
	return nil
}

func (a *App) addCloser(fn func() error) {
	if fn != nil {
		a.closers = append(a.closers, fn)
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller returns the turn controller.
func (a *App) Controller() *conversation.Controller { return a.ctrl }

// Bus returns the event bus every presentation adapter subscribes to.
func (a *App) Bus() *events.Bus { return a.bus }

// Config returns the effective configuration, defaults included.
func (a *App) Config() *config.Config { return a.cfg }

// Handler returns the local HTTP surface: /metrics, /healthz, /readyz and
// the /ws event bridge.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	a.health.Register(mux)
	mux.Handle("/ws", a.bridge)
	return observe.Middleware(a.metrics)(mux)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run executes the turn controller and its companions until ctx is
// cancelled, one of them fails, or the trainee quits the console.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Subscribers attach before the controller publishes its first event.
	if a.journal != nil {
		ch, cancel := a.bus.Subscribe(64)
		g.Go(func() error {
			defer cancel()
			return a.journal.Run(ctx, ch)
		})
	}
	var consoleCh <-chan events.Envelope
	if a.console {
		ch, cancel := a.bus.Subscribe(256)
		defer cancel()
		consoleCh = ch
	}

	g.Go(func() error { return a.ctrl.Run(ctx) })

	if a.client != nil {
		g.Go(func() error {
			a.client.Monitor(ctx, a.cfg.Backend.HealthInterval)
			return nil
		})
	}
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(ctx) })
	}
	if addr := a.cfg.Server.ListenAddr; addr != "-" {
		g.Go(func() error { return a.serve(ctx, addr) })
	}
	if a.console {
		g.Go(func() error {
			if err := console.Run(ctx, a.ctrl, consoleCh, console.WithStressBar(a.cfg.StressBarVisible())); err != nil {
				return fmt.Errorf("app: console: %w", err)
			}
			return errConsoleQuit
		})
	}

	err := g.Wait()
	if errors.Is(err, errConsoleQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serve runs the HTTP surface on addr until ctx is done.
func (a *App) serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with Run so /ws clients are released.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	slog.Info("http: listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http: shutdown", "err", err)
	}
	return nil
}

// onConnectivity publishes backend connectivity flips. A recovered
// backend closes the breaker so the next turn is not short-circuited.
func (a *App) onConnectivity(connected bool) {
	if connected {
		a.guarded.Breaker().Reset()
	}
	a.metrics.SetBackendConnected(connected)
	a.bus.Publish(events.ConnectivityChanged{Connected: connected})
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies a changed configuration file. The log level changes
// immediately and the session policy applies from the next session; every
// other change is reported and waits for a restart.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("config: log level changed", "level", d.NewLogLevel)
	}
	if d.SessionChanged {
		if err := a.ctrl.SetSessionPolicy(d.NewSession); err != nil {
			slog.Warn("config: session policy rejected", "err", err)
		} else {
			slog.Info("config: session policy updated; applies from the next session")
		}
	}
	if d.VolumeChanged {
		a.outputs.SetVolume(d.NewVolume)
		slog.Info("config: playback volume changed", "volume", d.NewVolume)
	}
	if d.StressBarChanged {
		a.bus.Publish(events.DisplayChanged{ShowStressBar: d.NewShowStressBar})
		slog.Info("config: stress bar visibility changed", "show", d.NewShowStressBar)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config: changes need a restart", "fields", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases the audio drivers in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	_ = a.Shutdown(context.Background())
}
