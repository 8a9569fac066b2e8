package cmd

import (
	"github.com/spf13/cobra"
)

// New creates the root command with all subcommands registered.
func New() *cobra.Command {
	opts := NewOptions()

	rootCmd := &cobra.Command{
		Use:   "jira-router",
		Short: "Export Jira bugs and route them to the owning team",
		Long: `Exports recent Bug and Transient Bug tickets from Jira into a CSV
training set, and predicts the team that should fix a ticket using a
classification service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	addGlobalFlags(rootCmd, opts)

	rootCmd.AddCommand(NewCmdExport(opts))
	rootCmd.AddCommand(NewCmdPredict(opts))
	rootCmd.AddCommand(NewCmdEvaluate(opts))
	rootCmd.AddCommand(NewCmdStats(opts))
	rootCmd.AddCommand(NewCmdConfig(opts))
	rootCmd.AddCommand(NewCmdVersion())

	return rootCmd
}

// addGlobalFlags adds the flags every subcommand understands.
func addGlobalFlags(cmd *cobra.Command, opts *Options) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "Config file (default: global config merged with ./.jira-router.yaml)")
	flags.CountVarP(&opts.Verbosity, "verbose", "v", "Increase verbosity (-v info, -vv debug, -vvv trace)")

	// TUI flag with tri-state: nil = auto, true = force, false = disable
	flags.Var(newTUIFlag(opts), "tui", "Enable/disable TUI progress (default: auto-detect)")
	flags.Lookup("tui").NoOptDefVal = "true"
}
