package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/consultorio/internal/session"
)

type scoreFlags struct {
	initial  int
	final    int
	turns    int
	elapsed  time.Duration
	success  bool
	message  string
	emotions []string
}

func newScoreCmd() *cobra.Command {
	flags := &scoreFlags{}
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Grade a session from its final statistics",
		Long: `Score computes the session score and letter grade from the initial and
final stress, the number of turns and the elapsed time, and prints the
results report shown to the trainee.`,
		Example: `  consultorio score --initial 7 --final 2 --turns 6 --elapsed 3m10s --success`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScore(cmd, flags)
		},
	}
	f := cmd.Flags()
	f.IntVar(&flags.initial, "initial", session.DefaultConfig().InitialStress, "initial stress level (0-10)")
	f.IntVar(&flags.final, "final", 0, "final stress level (0-10)")
	f.IntVar(&flags.turns, "turns", 0, "number of completed turns")
	f.DurationVar(&flags.elapsed, "elapsed", 0, "active session time")
	f.BoolVar(&flags.success, "success", false, "the session ended in successful de-escalation")
	f.StringVar(&flags.message, "message", "", "outcome message (defaults to the standard one)")
	f.StringSliceVar(&flags.emotions, "emotions", nil, "classified emotions in order")
	_ = cmd.MarkFlagRequired("final")
	return cmd
}

func runScore(cmd *cobra.Command, flags *scoreFlags) error {
	for name, v := range map[string]int{"initial": flags.initial, "final": flags.final} {
		if v < session.MinStress || v > session.MaxStress {
			return fmt.Errorf("--%s must be within [%d, %d], got %d", name, session.MinStress, session.MaxStress, v)
		}
	}
	if flags.turns < 0 || flags.elapsed < 0 {
		return fmt.Errorf("--turns and --elapsed must not be negative")
	}

	msg := flags.message
	if msg == "" && flags.success {
		msg = session.MessageSuccess
	}
	r := session.Evaluate(session.Stats{
		Success:       flags.success,
		Message:       msg,
		InitialStress: flags.initial,
		FinalStress:   flags.final,
		Turns:         flags.turns,
		Elapsed:       flags.elapsed,
		Emotions:      flags.emotions,
	})
	fmt.Fprint(cmd.OutOrStdout(), session.FormatResults(r))
	return nil
}
