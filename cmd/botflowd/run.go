package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the configured bots and serve until interrupted",
		Long: `Run opens the configured store, starts every bot listed under "bots" and
serves Prometheus metrics. SIGHUP restarts all bots; SIGINT and SIGTERM stop
them gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := cfg.Log.NewLogger(cmd.ErrOrStderr())

			d, err := newDaemon(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(signals)

			return d.serve(cmd.Context(), signals)
		},
	}
}
