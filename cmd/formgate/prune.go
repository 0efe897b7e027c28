// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/formgate/formgate/internal/auth"
	"github.com/formgate/formgate/internal/config"
	"github.com/formgate/formgate/internal/logging"
)

// NewPruneCmd creates the prune-tokens subcommand.
func NewPruneCmd() *cobra.Command {
	return newPruneCmdWithDeps(nil)
}

func newPruneCmdWithDeps(deps *ServeDeps) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "prune-tokens",
		Short: "Delete expired verification and reset tokens",
		Long: `Delete tokens that expired more than --grace ago from the configured
token store. Expired tokens are already unusable; pruning only reclaims space.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrune(cmd.Context(), cmd, grace, deps)
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", time.Hour, "keep tokens that expired less than this long ago")
	cmd.Flags().String("tokens", config.BackendPostgres, "token storage backend (postgres or redis)")
	cmd.Flags().String("storage", config.BackendPostgres, "account storage backend (postgres or memory)")
	cmd.Flags().String("redis-addr", "localhost:6379", "redis address for the redis token backend")

	return cmd
}

func runPrune(ctx context.Context, cmd *cobra.Command, grace time.Duration, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}
	if grace < 0 {
		return oops.Code("INVALID_GRACE").With("grace", grace).Errorf("--grace must not be negative")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Tokens.Backend == config.BackendMemory {
		return oops.Code("CONFIG_INVALID").Errorf("the memory token backend has nothing to prune")
	}

	logger := logging.New(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Writer:  cmd.ErrOrStderr(),
	})

	stores, err := openBackends(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	issuer, err := auth.NewTokenIssuer(stores.tokens, stores.accounts)
	if err != nil {
		return err
	}

	n, err := issuer.PruneExpired(ctx, grace)
	if err != nil {
		return oops.Code("PRUNE_FAILED").Wrap(err)
	}

	cmd.Printf("Pruned %d expired tokens\n", n)
	return nil
}
