package cmd

import (
	"fmt"
	"math/rand/v2"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Sourjya261-BB/Jira-Router/internal/classify"
	"github.com/Sourjya261-BB/Jira-Router/internal/constants"
	"github.com/Sourjya261-BB/Jira-Router/internal/evaluate"
	"github.com/Sourjya261-BB/Jira-Router/internal/log"
	"github.com/Sourjya261-BB/Jira-Router/internal/output"
)

type evaluateOptions struct {
	File    string
	Samples int
	Seed    uint64
	Format  string
}

// NewCmdEvaluate creates the evaluate command.
func NewCmdEvaluate(opts *Options) *cobra.Command {
	eo := &evaluateOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score the classifier against exported tickets",
		Long: `Draws random tickets from an exported CSV, predicts the team for
each one and compares the prediction with the recorded "Fixed By" team.

The file must contain Summary, Description and Fixed By columns. Without
--file the configured export output is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvaluate(cmd, opts, eo)
		},
	}

	cmd.Flags().StringVarP(&eo.File, "file", "f", "", "CSV file to sample from (default: export output)")
	cmd.Flags().IntVarP(&eo.Samples, "samples", "n", constants.DefaultSamples,
		fmt.Sprintf("Number of tickets to evaluate (1-%d)", constants.MaxSamples))
	cmd.Flags().Uint64Var(&eo.Seed, "seed", 0, "Random seed for a reproducible sample (default: random)")
	cmd.Flags().StringVarP(&eo.Format, "output", "o", "table", "Output format (table, json, markdown)")

	return cmd
}

func runEvaluate(cmd *cobra.Command, opts *Options, eo *evaluateOptions) error {
	setupRuntime(opts, false)

	format, err := output.ParseFormat(eo.Format)
	if err != nil {
		return err
	}
	if eo.Samples < 1 || eo.Samples > constants.MaxSamples {
		return evaluate.ErrSampleSize
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.ValidateModel(); err != nil {
		return err
	}

	path := eo.File
	if path == "" {
		path = cfg.Export.Output
	}
	samples, err := evaluate.Load(afero.NewOsFs(), path)
	if err != nil {
		return err
	}

	seed := eo.Seed
	if !cmd.Flags().Changed("seed") {
		seed = rand.Uint64()
	}
	drawn, err := evaluate.Draw(samples, eo.Samples, evaluate.NewRand(seed))
	if err != nil {
		return err
	}
	log.Info("evaluating", "file", path, "available", len(samples), "samples", len(drawn), "seed", seed)

	report := evaluate.Evaluate(cmd.Context(), classify.NewClient(cfg.Model), drawn)
	return output.NewFormatter(format, cfg.Jira.Server).FormatReport(report, cmd.OutOrStdout())
}
