package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/txn-review/approvals/src/client/cache"
	"github.com/txn-review/approvals/src/client/session"
	"github.com/txn-review/approvals/src/client/transport"
	"github.com/txn-review/approvals/src/logging"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Interactively review transactions served by the dev API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.InitTo(os.Stderr, cfg.LogLevel)
		reg := prometheus.NewRegistry()

		t := transport.NewHTTP(cfg.APIURL,
			transport.WithTimeout(cfg.HTTPTimeout),
			transport.WithLogger(logger),
		)
		c := cache.New(t, cache.WithLogger(logger), cache.WithRegisterer(reg))
		sess := session.New(c, session.WithLogger(logger))

		sh := newShell(sess, cmd.OutOrStdout(), reg)
		return sh.run(cmd.Context(), cmd.InOrStdin())
	},
}

func init() {
	reviewCmd.Flags().StringVar(&cfg.APIURL, "api", cfg.APIURL, "dev API base URL")
	reviewCmd.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "per-request timeout")
}
