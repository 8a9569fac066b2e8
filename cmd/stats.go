package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sourjya261-BB/Jira-Router/internal/output"
	"github.com/Sourjya261-BB/Jira-Router/internal/stats"
	"github.com/Sourjya261-BB/Jira-Router/internal/tui"
)

// NewCmdStats creates the stats command.
func NewCmdStats(opts *Options) *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show recent export runs",
		Long: `Shows the history of export runs: how many issues matched, how many
were written per issue type and which pages could not be fetched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, opts, limit, format)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format (table, json, markdown)")

	return cmd
}

func runStats(cmd *cobra.Command, opts *Options, limit int, format string) error {
	setupRuntime(opts, false)

	f, err := output.ParseFormat(format)
	if err != nil {
		return err
	}
	if limit < 1 {
		return fmt.Errorf("--limit must be at least 1, got %d", limit)
	}

	store, err := stats.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	runs := store.Recent(limit)

	out := cmd.OutOrStdout()
	if f == output.FormatTable && len(runs) > 0 && shouldUseTUI(opts) {
		fmt.Fprintln(out, tui.RenderRunSummary(runs[len(runs)-1], runs))
	}
	return output.NewFormatter(f, "").FormatRuns(runs, out)
}
