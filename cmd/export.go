package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Sourjya261-BB/Jira-Router/internal/export"
	"github.com/Sourjya261-BB/Jira-Router/internal/jira"
	"github.com/Sourjya261-BB/Jira-Router/internal/log"
	"github.com/Sourjya261-BB/Jira-Router/internal/normalize"
	"github.com/Sourjya261-BB/Jira-Router/internal/stats"
	"github.com/Sourjya261-BB/Jira-Router/internal/tui"
)

// historyRuns is the number of past runs shown in the post-export trends.
const historyRuns = 20

// NewCmdExport creates the export command.
func NewCmdExport(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export recent bug tickets from Jira to CSV",
		Long: `Fetches every Bug and Transient Bug created within the lookback
window, keeps the ones resolved by a known team, and writes them to the
configured CSV file. The file is rewritten atomically after every chunk of
pages, so an interrupted export leaves a complete, valid file behind.

Pages that keep failing are retried in serial passes at the end; pages that
still fail are reported and the export exits successfully with partial data.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, opts)
		},
	}
}

func runExport(cmd *cobra.Command, opts *Options) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rt := setupRuntime(opts, true)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client := jira.NewClient(ctx, cfg.Jira, cfg.Cutoff(time.Now()))
	log.Info("starting export",
		"server", cfg.Jira.Server,
		"jql", client.JQL(),
		"output", cfg.Export.Output,
		"whitelist", len(cfg.Export.TeamWhitelist))

	persister := export.NewPersister(
		afero.NewOsFs(),
		cfg.Export.Output,
		normalize.New(cfg.Jira.TeamField, cfg.Export.TeamWhitelist),
		cfg.Export.DedupeKeys,
	)

	exOpts := export.DefaultOptions()
	exOpts.PageSize = cfg.Export.BatchSize
	exOpts.MaxWorkers = cfg.Export.MaxWorkers

	store, err := stats.NewStore()
	if err != nil {
		log.Warn("run history disabled", "error", err)
	} else {
		exOpts.Recorder = store
	}

	rt.startTUI(cancel)
	if rt.useTUI {
		exOpts.OnProgress = tui.ProgressSink(rt.events)
	} else {
		exOpts.OnProgress = logProgress
	}

	sum, err := export.New(client, persister, exOpts).Run(ctx)
	rt.close()
	log.ProgressClear()
	if sum == nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rt.useTUI {
		var history []stats.Snapshot
		if store != nil {
			history = store.Recent(historyRuns)
		}
		fmt.Fprint(out, tui.RenderRunSummary(sum.Snapshot(), history))
	} else {
		printSummary(out, sum, persister.Path())
	}
	return err
}

// logProgress renders export progress on a single status line when the TUI
// is disabled.
func logProgress(p export.Progress) {
	switch {
	case p.Err != nil:
		log.ProgressClear()
	case p.Stage == export.StageFetch && !p.Finished && p.Total > 0:
		log.Progress("Fetching pages %d/%d (%d failed)", p.Done, p.Total, p.Failed)
	case p.Stage == export.StageRetry && !p.Finished && p.Total > 0:
		log.Progress("Retrying failed pages %d/%d", p.Done, p.Total)
	case p.Finished && (p.Stage == export.StageFetch || p.Stage == export.StageRetry):
		log.ProgressDone()
	}
}

func printSummary(w io.Writer, sum *export.Summary, path string) {
	fmt.Fprintf(w, "Successfully wrote %d issues to %s\n", sum.Tally.Total, path)
	for _, t := range slices.Sorted(maps.Keys(sum.Tally.ByType)) {
		fmt.Fprintf(w, "  %-16s %d\n", t+":", sum.Tally.Count(t))
	}
	fmt.Fprintf(w, "  %d issues matched, %d pages fetched in %s\n",
		sum.Total, sum.Pages, sum.Duration.Round(time.Second))
	if sum.Partial() {
		fmt.Fprintf(w, "Warning: %d pages could not be fetched (offsets %v); the file is incomplete\n",
			len(sum.FailedOffsets), sum.FailedOffsets)
	}
}
