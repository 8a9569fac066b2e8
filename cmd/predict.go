package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sourjya261-BB/Jira-Router/internal/classify"
	"github.com/Sourjya261-BB/Jira-Router/internal/log"
)

// NewCmdPredict creates the predict command.
func NewCmdPredict(opts *Options) *cobra.Command {
	var summary, description string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the team that should fix a ticket",
		Long: `Sends a ticket summary and description to the classification
service and prints the predicted team. Both fields are required.

Use "-d -" to read the description from standard input.`,
		Example: `  jira-router predict -s "Checkout button does nothing" -d "Clicking pay on mobile..."
  jira-router predict -s "Search is slow" -d - < description.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPredict(cmd, opts, summary, description)
		},
	}

	cmd.Flags().StringVarP(&summary, "summary", "s", "", "Ticket summary")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Ticket description (- reads stdin)")

	return cmd
}

func runPredict(cmd *cobra.Command, opts *Options, summary, description string) error {
	setupRuntime(opts, false)

	if description == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read description: %w", err)
		}
		description = string(data)
	}
	if strings.TrimSpace(summary) == "" || strings.TrimSpace(description) == "" {
		return classify.ErrMissingInput
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.ValidateModel(); err != nil {
		return err
	}

	if log.IsDebug() {
		log.Debug("query", "text", classify.FormatQuery(summary, description))
	}

	team, err := classify.Predict(cmd.Context(), classify.NewClient(cfg.Model), summary, description)
	if err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Predicted team: %s\n", team)
	return nil
}
