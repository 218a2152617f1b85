package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/consultorio/internal/config"
	"github.com/MrWong99/consultorio/pkg/audio"
	"github.com/MrWong99/consultorio/pkg/backend"
)

func newCheckCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the simulation service and the audio input",
		Long: `Check inspects the simulation service's health endpoint and lists the
input devices of the configured audio driver, marking the one a session
would record from.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, root.configPath)
			if err != nil {
				return err
			}
			cfg.ApplyDefaults()
			reg := config.NewRegistry()
			registerBuiltinDrivers(reg)
			return runCheck(cmd, cfg, reg)
		},
	}
}

// runCheck reports every problem it finds and fails if there was any.
func runCheck(cmd *cobra.Command, cfg *config.Config, reg *config.Registry) error {
	out := cmd.OutOrStdout()
	var errs []error

	// ── Backend ───────────────────────────────────────────────────────────────
	client, err := backend.New(cfg.Backend.BaseURL, cfg.BackendOptions()...)
	if err != nil {
		return err
	}
	if client.HealthCheck(cmd.Context()) {
		fmt.Fprintf(out, "backend   %s  ok\n", client.BaseURL())
	} else {
		fmt.Fprintf(out, "backend   %s  unreachable\n", client.BaseURL())
		errs = append(errs, errors.New("simulation service unreachable"))
	}

	// ── Input ─────────────────────────────────────────────────────────────────
	platform, closeFn, err := reg.CreateInput(cfg.Audio)
	if err != nil {
		fmt.Fprintf(out, "input     %s  %v\n", cfg.Audio.Input, err)
		return errors.Join(append(errs, err)...)
	}
	if closeFn != nil {
		defer closeFn()
	}
	devices, err := platform.Devices()
	if err != nil {
		errs = append(errs, fmt.Errorf("list devices: %w", err))
	}
	chosen, ok := audio.SelectDevice(devices, cfg.Audio.DeviceHints...)
	if !ok {
		fmt.Fprintf(out, "input     %s  no input device\n", cfg.Audio.Input)
		errs = append(errs, errors.New("no input device"))
	} else {
		fmt.Fprintf(out, "input     %s  %d device(s)\n", cfg.Audio.Input, len(devices))
	}
	for _, d := range devices {
		mark := " "
		if ok && d.ID == chosen.ID {
			mark = "*"
		}
		fmt.Fprintf(out, "  %s %-4s %s (%d ch)\n", mark, d.ID, d.Name, d.Channels)
	}

	return errors.Join(errs...)
}
