// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/formgate/formgate/internal/config"
)

// NewRootCmd creates the root command for the formgate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formgate",
		Short: "formgate - account signup, verification and password reset",
		Long: `formgate serves the account lifecycle API: signup, login, email
verification and password reset, with single-use emailed tokens.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default: XDG_CONFIG_HOME/formgate/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPruneCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads and validates the layered config for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config") //nolint:errcheck // flag is persistent on root
	cfg, err := loadConfigUnvalidated(cmd, path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigUnvalidated(cmd *cobra.Command, path string) (*config.Config, error) {
	return config.Load(config.LoadOptions{File: path, Flags: cmd.Flags()})
}
