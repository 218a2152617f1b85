// Command consultorio is the session turn controller of the virtual-patient
// de-escalation trainer. It records the trainee, sends each turn to the
// simulation service, plays the patient's reply and grades the session.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MrWong99/consultorio/internal/config"
)

// version is set via ldflags at build time.
var version = "dev"

// defaultConfigPath is used when --config is not given.
const defaultConfigPath = "consultorio.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "consultorio: %v\n", err)
		os.Exit(1)
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "consultorio",
		Short: "Turn controller for the virtual-patient de-escalation trainer",
		Long: `consultorio runs one training station: it captures the trainee's voice,
forwards each turn to the simulation service, plays the patient's reply and
grades the session when it ends.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", defaultConfigPath, "path to the YAML configuration file")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newCheckCmd(flags))
	cmd.AddCommand(newScoreCmd())
	cmd.AddCommand(newHistoryCmd(flags))
	return cmd
}

// loadConfig reads the configuration file. A missing file is only an error
// when the path was given explicitly; otherwise the defaults are used.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		return &config.Config{}, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found", path)
	}
	return nil, err
}

// newLogger builds the process logger. Output goes to logFile when set and
// to stderr otherwise; the returned close func releases the file.
func newLogger(level *slog.LevelVar, logFile string) (*slog.Logger, func() error, error) {
	var w io.Writer = os.Stderr
	closeFn := func() error { return nil }
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		w, closeFn = f, f.Close
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closeFn, nil
}
