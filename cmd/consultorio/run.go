package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/consultorio/internal/app"
	"github.com/MrWong99/consultorio/internal/config"
	"github.com/MrWong99/consultorio/internal/observe"
	"github.com/MrWong99/consultorio/pkg/backend"
)

// shutdownTimeout bounds the release of audio drivers after Run returns.
const shutdownTimeout = 15 * time.Second

type runFlags struct {
	headless bool
	watch    bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a training station",
		Long: `Run starts a training session and keeps the station alive until it is
interrupted. By default the terminal console is shown; with --headless the
station is driven through the WebSocket bridge only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStation(cmd, root, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.headless, "headless", false, "run without the terminal console")
	cmd.Flags().BoolVar(&flags.watch, "watch", true, "reload the configuration file when it changes")
	return cmd
}

func runStation(cmd *cobra.Command, root *rootFlags, flags *runFlags) error {
	// ── Configuration ─────────────────────────────────────────────────────────
	var application *app.App
	var watcher *config.Watcher
	cfg, err := loadConfig(cmd, root.configPath)
	if err != nil {
		return err
	}
	if flags.watch {
		if _, statErr := os.Stat(root.configPath); statErr == nil {
			watcher, err = config.NewWatcher(root.configPath, func(old, new *config.Config) {
				application.Reload(old, new)
			})
			if err != nil {
				return err
			}
			cfg = watcher.Current()
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.SlogLevel())
	logFile := cfg.Server.LogFile
	if !flags.headless && logFile == "" {
		// The console owns the terminal.
		logFile = filepath.Join(os.TempDir(), "consultorio.log")
	}
	logger, closeLog, err := newLogger(level, logFile)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("consultorio starting",
		"version", version,
		"config", root.configPath,
		"headless", flags.headless,
		"watch", watcher != nil,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	backendURL := cfg.Backend.BaseURL
	if backendURL == "" {
		backendURL = backend.DefaultBaseURL
	}
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		StationID:      cfg.Server.StationID,
		BackendURL:     backendURL,
		TraceFile:      cfg.Server.TraceFile,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinDrivers(reg)

	opts := []app.Option{app.WithRegistry(reg), app.WithLogLevel(level)}
	if watcher != nil {
		opts = append(opts, app.WithWatcher(watcher))
	}
	if !flags.headless {
		opts = append(opts, app.WithConsole())
	}
	application, err = app.New(cfg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return err
	}

	slog.Info("station ready; press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return err
	}
	slog.Info("goodbye")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
