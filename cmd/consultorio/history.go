package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/consultorio/internal/journal"
	"github.com/MrWong99/consultorio/internal/session"
)

func newHistoryCmd(root *rootFlags) *cobra.Command {
	var file string
	var last int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished sessions from the results journal",
		Long: `History prints the sessions recorded in server.results_file, oldest
first, with their outcome and grade.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				cfg, err := loadConfig(cmd, root.configPath)
				if err != nil {
					return err
				}
				file = cfg.Server.ResultsFile
			}
			if file == "" {
				return errors.New("no results journal; set server.results_file or pass --file")
			}
			return printHistory(cmd, journal.NewFileStore(file), last)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "results journal to read (overrides server.results_file)")
	cmd.Flags().IntVar(&last, "last", 0, "only show the most recent N sessions")
	return cmd
}

func printHistory(cmd *cobra.Command, store *journal.FileStore, last int) error {
	recs, err := store.Records()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintf(out, "no sessions recorded in %s\n", store.Path())
		return nil
	}
	if last > 0 && last < len(recs) {
		recs = recs[len(recs)-last:]
	}

	fmt.Fprintf(out, "%-20s  %-38s  %-7s  %-6s  %5s  %6s  %5s\n", "FINISHED", "SESSION", "RESULT", "STRESS", "TURNS", "TIME", "GRADE")
	for _, r := range recs {
		result := "failed"
		if r.Success {
			result = "success"
		}
		fmt.Fprintf(out, "%-20s  %-38s  %-7s  %2d→%-3d  %5d  %6s  %5s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.SessionID,
			result,
			r.InitialStress, r.FinalStress,
			r.Turns,
			session.FormatDuration(r.Elapsed()),
			r.Grade,
		)
	}
	return nil
}
