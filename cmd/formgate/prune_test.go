// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formgate/formgate/internal/auth"
	"github.com/formgate/formgate/internal/auth/redis"
	"github.com/formgate/formgate/pkg/errutil"
)

func putToken(t *testing.T, repo *redis.TokenRepository, expiresAt time.Time, purpose auth.Purpose) {
	t.Helper()
	_, hash, err := auth.GenerateToken()
	require.NoError(t, err)
	require.NoError(t, repo.Put(context.Background(), &auth.Token{
		Hash:      hash,
		Purpose:   purpose,
		AccountID: ulid.Make(),
		IssuedAt:  expiresAt.Add(-time.Hour),
		ExpiresAt: expiresAt,
	}))
}

func TestPrune_RedisTokens(t *testing.T) {
	isolateConfig(t)
	mr := miniredis.RunT(t)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := redis.NewTokenRepository(client)

	now := time.Now()
	putToken(t, repo, now.Add(-3*time.Hour), auth.PurposeVerification)
	putToken(t, repo, now.Add(-30*time.Minute), auth.PurposeReset)
	putToken(t, repo, now.Add(time.Hour), auth.PurposeVerification)

	cmd := newPruneCmdWithDeps(nil)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--storage", "memory", "--tokens", "redis", "--redis-addr", mr.Addr(), "--grace", "1h"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, buf.String(), "Pruned 1 expired tokens")
}

func TestPrune_MemoryBackendRejected(t *testing.T) {
	isolateConfig(t)

	cmd := newPruneCmdWithDeps(nil)
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--storage", "memory", "--tokens", "memory"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestPrune_NegativeGrace(t *testing.T) {
	isolateConfig(t)

	cmd := newPruneCmdWithDeps(nil)
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--grace", "-1m"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_GRACE")
}
