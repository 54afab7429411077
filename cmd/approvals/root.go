package main

import (
	"github.com/spf13/cobra"
	"github.com/txn-review/approvals/src/config"
)

// cfg is loaded from the environment before flags are parsed, so flags
// override environment values.
var cfg = config.Load()

var rootCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Review and approve employee transactions",
	Long: `approvals serves a development API with employees and their transactions,
and runs an interactive review session against it.

  approvals serve                 # start the dev API
  approvals review                # review transactions from API_URL
  approvals fixtures upload FILE  # copy a fixture file into fixture storage`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	rootCmd.AddCommand(serveCmd, reviewCmd, fixturesCmd)
}
