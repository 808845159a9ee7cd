package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-intake/pkg/intake"
	"github.com/tendant/simple-intake/pkg/intake/backend/directus"
)

func newSetupCommand(ctx *commandContext) *cobra.Command {
	var publicActions []string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the Directus collections, fields and public permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.load(cmd)
			if err != nil {
				return err
			}

			client, err := cfg.BuildDirectus(logger)
			if err != nil {
				return err
			}

			actions := cfg.Directus.PublicActions
			if cmd.Flags().Changed("public-actions") {
				actions = publicActions
			}

			collections := directus.SchemaFromForms(intake.DefaultForms(), cfg.Rewrite.Collection)
			for i := range collections {
				collections[i].PublicActions = actions
			}

			result, err := client.EnsureSchema(cmd.Context(), collections)
			if err != nil {
				return fmt.Errorf("failed to set up directus: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Directus configured: %d collections, %d fields, %d permissions created\n",
				result.Collections, result.Fields, result.Permissions)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&publicActions, "public-actions", nil, "Actions granted to the public role (overrides DIRECTUS_PUBLIC_ACTIONS)")
	return cmd
}
