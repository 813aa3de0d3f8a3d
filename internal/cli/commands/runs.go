package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/galotfa/internal/cli/config"
	"github.com/leapstack-labs/galotfa/internal/state"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var (
		format string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "runs [session-id]",
		Short: "List the runs recorded in the run journal",
		Long: `List the runs recorded in the run journal, newest first.

With a session id, show that run in detail, including the configuration
it ran with.`,
		Example: `  # Last ten runs
  galotfa runs

  # One run in detail
  galotfa runs 0b6a2f64-6c1e-4f0e-9a53-2f1b7c0e9d11`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetConfig(cmd.Context())
			if cfg.State.Path == "" {
				return fmt.Errorf("the run journal is disabled (state.path is empty)")
			}
			journal, err := openJournal(cfg.State.Path, config.GetLogger(cmd.Context()))
			if err != nil {
				return err
			}
			defer func() { _ = journal.Close() }()

			if len(args) == 1 {
				run, err := journal.GetRun(args[0])
				if err != nil {
					return err
				}
				return renderRun(cmd, format, run)
			}

			runs, err := journal.ListRuns(limit)
			if err != nil {
				return err
			}
			styles := newStatusStyles(cmd.OutOrStdout())
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				status := string(r.Status)
				if format == "table" {
					status = styles.render(r.Status)
				}
				rows = append(rows, []string{
					r.SessionID,
					status,
					r.StartedAt.Local().Format(time.DateTime),
					runDuration(r),
					fmt.Sprint(r.Ranks),
					fmt.Sprint(r.Particles),
					fmt.Sprint(r.Steps),
					r.Backend,
				})
			}
			return renderRows(cmd.OutOrStdout(), format,
				[]string{"session", "status", "started", "duration", "ranks", "particles", "steps", "backend"}, rows)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table|markdown|csv|json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of runs to list")
	return cmd
}

func renderRun(cmd *cobra.Command, format string, r *state.Run) error {
	rows := [][]string{
		{"session", r.SessionID},
		{"command", r.Command},
		{"status", string(r.Status)},
		{"started", r.StartedAt.Local().Format(time.DateTime)},
		{"duration", runDuration(r)},
		{"ranks", fmt.Sprint(r.Ranks)},
		{"particles", fmt.Sprint(r.Particles)},
		{"steps", fmt.Sprint(r.Steps)},
		{"backend", r.Backend},
		{"output_dir", r.OutputDir},
	}
	if r.Error != "" {
		rows = append(rows, []string{"error", r.Error})
	}
	for _, path := range r.Outputs {
		rows = append(rows, []string{"output", path})
	}
	if err := renderRows(cmd.OutOrStdout(), format, []string{"run", "value"}, rows); err != nil {
		return err
	}
	if format == "table" && r.Config != "" {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", strings.TrimRight(r.Config, "\n"))
		return err
	}
	return nil
}

func runDuration(r *state.Run) string {
	if r.CompletedAt == nil {
		return "-"
	}
	return r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}
