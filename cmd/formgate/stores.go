// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/formgate/formgate/internal/auth"
	"github.com/formgate/formgate/internal/auth/memory"
	"github.com/formgate/formgate/internal/auth/postgres"
	"github.com/formgate/formgate/internal/auth/redis"
	"github.com/formgate/formgate/internal/config"
	"github.com/formgate/formgate/internal/observability"
)

// backends holds the repositories selected by config plus their probes.
type backends struct {
	accounts auth.AccountRepository
	tokens   auth.TokenRepository

	checks  []observability.Check
	closers []func()
}

// openBackends connects the account and token stores named in cfg.
func openBackends(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (*backends, error) {
	b := &backends{}

	var db Database
	if cfg.UsesPostgres() {
		var err error
		db, err = deps.DatabaseConnector(ctx, cfg.Database.URL)
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		b.checks = append(b.checks, observability.Check{Name: "postgres", Probe: db.Ping})
		b.closers = append(b.closers, db.Close)
		logger.Info("connected to database")
	}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		b.accounts = postgres.NewAccountRepository(db)
	default:
		logger.Warn("using in-memory account storage, accounts are lost on restart")
		b.accounts = memory.NewAccountRepository()
	}

	switch cfg.Tokens.Backend {
	case config.BackendPostgres:
		b.tokens = postgres.NewTokenRepository(db)
	case config.BackendRedis:
		client := deps.RedisFactory(cfg.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close() //nolint:errcheck // ping error takes precedence
			b.Close()
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Redis.Addr).Wrap(err)
		}
		b.checks = append(b.checks, observability.Check{
			Name:  "redis",
			Probe: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
		b.closers = append(b.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("error closing redis client", "error", err)
			}
		})
		b.tokens = redis.NewTokenRepository(client,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithRetention(cfg.Tokens.Retention),
		)
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	default:
		logger.Warn("using in-memory token storage, outstanding tokens are lost on restart")
		b.tokens = memory.NewTokenRepository()
	}

	return b, nil
}

// Close releases backend connections in reverse order.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
