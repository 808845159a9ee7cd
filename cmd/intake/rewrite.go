package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRewriteCommand(ctx *commandContext) *cobra.Command {
	var loop bool

	cmd := &cobra.Command{
		Use:   "rewrite",
		Short: "Rewrite pending records with the AI model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.load(cmd)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, cleanup, err := cfg.BuildStore(runCtx, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			job, err := cfg.BuildRewriteJob(runCtx, store, logger)
			if err != nil {
				return err
			}

			if loop {
				return job.Run(runCtx)
			}

			result, err := job.RunOnce(runCtx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rewrote %d records (%d skipped, %d failed)\n",
				result.Processed, result.Skipped, result.Failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&loop, "loop", false, "Keep running on REWRITE_INTERVAL until interrupted")
	return cmd
}
