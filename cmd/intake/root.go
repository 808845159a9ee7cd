package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-intake/pkg/intake/config"
)

// commandContext carries the flags shared by every subcommand
type commandContext struct {
	envFiles []string
	logOut   io.Writer
}

// load reads the .env files and the environment, then applies opts
func (c *commandContext) load(cmd *cobra.Command, opts ...config.Option) (*config.Config, *slog.Logger, error) {
	config.LoadDotEnv(c.envFiles...)
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	out := c.logOut
	if out == nil {
		out = cmd.ErrOrStderr()
	}
	logger := cfg.NewLogger(out)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "intake",
		Short:         "Community report intake service",
		Long:          "Serves the public report forms, stores uploads and forwards submissions to the content backend.\n\n" + config.Usage(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringSliceVar(&ctx.envFiles, "env-file", nil, "Environment files to load (default .env)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newSetupCommand(ctx))
	rootCmd.AddCommand(newRewriteCommand(ctx))
	rootCmd.AddCommand(newHashPasswordCommand())

	return rootCmd
}
