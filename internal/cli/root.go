// Package cli provides the tabexp command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tabexp-labs/tabexp/pkg/log"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

var (
	dbPath  string
	verbose bool
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tabexp",
		Short: "tabexp - tabular regression experiments",
		Long: `tabexp trains tabular regression models (random forest, gradient
boosting, MLP, and a tabular transformer) on CSV datasets and records
every run's parameters, metric curves, and artifacts in a local SQLite
database.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if verbose {
				log.SetLevel(log.LevelDebug)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "tabexp.db", "path to the run database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newRunsCmd())
	return rootCmd
}
