// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

// Package redis implements auth.TokenRepository on Redis.
//
// Layout, under a configurable prefix:
//
//	{<prefix>}:slot:<account>:<purpose>  string, hash of the slot's current token
//	{<prefix>}:token:<hash>              hash {account, purpose, issued_at, expires_at, consumed_at}
//
// The prefix is a cluster hash tag, so every key of one repository lives in a
// single slot. Put derives the superseded token's key inside its script, which
// Redis Cluster only permits for keys in the script's own slot. A prefix that
// already contains '{' is used verbatim and must keep that property.
//
// Both keys carry a Redis expiry of ExpiresAt plus a retention window, so an
// expired but unconsumed token can still be told apart from an unknown one.
// Put and Consume run as Lua scripts, which makes each one atomic.
package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/formgate/formgate/internal/auth"
)

// DefaultPrefix is the key prefix used when none is given.
const DefaultPrefix = "formgate:tok"

// DefaultRetention is how long a token key outlives its expiry.
const DefaultRetention = 24 * time.Hour

// putTokenLua replaces the slot's token.
// KEYS[1] = slot key
// KEYS[2] = new token key
// ARGV[1] = token key prefix (ends with ':')
// ARGV[2] = new token hash
// ARGV[3] = account id
// ARGV[4] = purpose
// ARGV[5] = issued_at (RFC3339Nano)
// ARGV[6] = expires_at (RFC3339Nano)
// ARGV[7] = key expiry, unix milliseconds
var putTokenLua = goredis.NewScript(`
local prev = redis.call('GET', KEYS[1])
if prev then
  redis.call('DEL', ARGV[1] .. prev)
end
redis.call('DEL', KEYS[2])
redis.call('HSET', KEYS[2],
  'account', ARGV[3],
  'purpose', ARGV[4],
  'issued_at', ARGV[5],
  'expires_at', ARGV[6],
  'consumed_at', '')
redis.call('PEXPIREAT', KEYS[2], ARGV[7])
redis.call('SET', KEYS[1], ARGV[2])
redis.call('PEXPIREAT', KEYS[1], ARGV[7])
return 1
`)

// consumeTokenLua marks an unconsumed token consumed.
// KEYS[1] = token key
// ARGV[1] = expected purpose
// ARGV[2] = consumed_at (RFC3339Nano)
//
// Returns {account, purpose, issued_at, expires_at} or error "not_found".
var consumeTokenLua = goredis.NewScript(`
local fields = redis.call('HMGET', KEYS[1], 'account', 'purpose', 'issued_at', 'expires_at', 'consumed_at')
if not fields[1] then
  return {err='not_found'}
end
if fields[2] ~= ARGV[1] then
  return {err='not_found'}
end
if fields[5] and fields[5] ~= '' then
  return {err='not_found'}
end
redis.call('HSET', KEYS[1], 'consumed_at', ARGV[2])
return {fields[1], fields[2], fields[3], fields[4]}
`)

// dropTokenLua deletes a token and clears its slot if the slot still points at it.
// KEYS[1] = token key
// KEYS[2] = slot key
// ARGV[1] = token hash
var dropTokenLua = goredis.NewScript(`
local n = redis.call('DEL', KEYS[1])
if redis.call('GET', KEYS[2]) == ARGV[1] then
  redis.call('DEL', KEYS[2])
end
return n
`)

const errNotFoundReply = "not_found"

// TokenRepository implements auth.TokenRepository on Redis.
type TokenRepository struct {
	client    goredis.UniversalClient
	prefix    string
	retention time.Duration
}

// Option configures a TokenRepository.
type Option func(*TokenRepository)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(r *TokenRepository) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithRetention sets how long token keys are kept past expiry.
func WithRetention(d time.Duration) Option {
	return func(r *TokenRepository) {
		if d > 0 {
			r.retention = d
		}
	}
}

// NewTokenRepository creates a Redis-backed token repository.
func NewTokenRepository(client goredis.UniversalClient, opts ...Option) *TokenRepository {
	r := &TokenRepository{
		client:    client,
		prefix:    DefaultPrefix,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// keyBase wraps the prefix in a hash tag unless it already carries one.
func (r *TokenRepository) keyBase() string {
	if strings.ContainsRune(r.prefix, '{') {
		return r.prefix
	}
	return "{" + r.prefix + "}"
}

func (r *TokenRepository) tokenPrefix() string {
	return r.keyBase() + ":token:"
}

func (r *TokenRepository) tokenKey(hash string) string {
	return r.tokenPrefix() + hash
}

func (r *TokenRepository) slotKey(accountID string, purpose string) string {
	return r.keyBase() + ":slot:" + accountID + ":" + purpose
}

// Put stores token in its slot, replacing the previous occupant.
func (r *TokenRepository) Put(ctx context.Context, token *auth.Token) error {
	accountID := token.AccountID.String()
	keepUntil := token.ExpiresAt.Add(r.retention)

	err := putTokenLua.Run(ctx, r.client,
		[]string{r.slotKey(accountID, string(token.Purpose)), r.tokenKey(token.Hash)},
		r.tokenPrefix(),
		token.Hash,
		accountID,
		string(token.Purpose),
		formatTime(token.IssuedAt),
		formatTime(token.ExpiresAt),
		keepUntil.UnixMilli(),
	).Err()
	if err != nil {
		return oops.Code("TOKEN_PUT_FAILED").
			With("account_id", accountID).
			With("purpose", string(token.Purpose)).
			Wrap(err)
	}
	return nil
}

// Consume marks the matching unconsumed token consumed and returns it.
func (r *TokenRepository) Consume(ctx context.Context, tokenHash string, purpose auth.Purpose, now time.Time) (*auth.Token, error) {
	res, err := consumeTokenLua.Run(ctx, r.client,
		[]string{r.tokenKey(tokenHash)},
		string(purpose),
		formatTime(now),
	).StringSlice()
	if err != nil {
		if err.Error() == errNotFoundReply || errors.Is(err, goredis.Nil) {
			return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		return nil, oops.Code("TOKEN_CONSUME_FAILED").With("purpose", string(purpose)).Wrap(err)
	}
	if len(res) != 4 {
		return nil, oops.Code("TOKEN_CONSUME_FAILED").Errorf("unexpected script reply length %d", len(res))
	}

	token, err := decodeToken(tokenHash, res)
	if err != nil {
		return nil, oops.Code("TOKEN_CONSUME_FAILED").Wrap(err)
	}
	consumedAt := now
	token.ConsumedAt = &consumedAt
	return token, nil
}

// DeleteExpired removes tokens that expired before the cutoff. Redis drops
// them on its own once the retention window passes; this reclaims them early.
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var (
		deleted int64
		cursor  uint64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.tokenPrefix()+"*", 100).Result()
		if err != nil {
			return deleted, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").Wrap(err)
		}
		for _, key := range keys {
			n, err := r.dropIfExpired(ctx, key, before)
			if err != nil {
				return deleted, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").With("key", key).Wrap(err)
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

func (r *TokenRepository) dropIfExpired(ctx context.Context, key string, before time.Time) (int64, error) {
	fields, err := r.client.HMGet(ctx, key, "account", "purpose", "expires_at").Result()
	if err != nil {
		return 0, err
	}
	account, _ := fields[0].(string)
	purpose, _ := fields[1].(string)
	rawExpiry, _ := fields[2].(string)
	if account == "" || rawExpiry == "" {
		return 0, nil
	}
	expiresAt, err := parseTime(rawExpiry)
	if err != nil {
		return 0, err
	}
	if !expiresAt.Before(before) {
		return 0, nil
	}

	hash := strings.TrimPrefix(key, r.tokenPrefix())
	return dropTokenLua.Run(ctx, r.client,
		[]string{key, r.slotKey(account, purpose)},
		hash,
	).Int64()
}

func decodeToken(hash string, fields []string) (*auth.Token, error) {
	accountID, err := ulid.Parse(fields[0])
	if err != nil {
		return nil, oops.With("field", "account").Wrap(err)
	}
	issuedAt, err := parseTime(fields[2])
	if err != nil {
		return nil, oops.With("field", "issued_at").Wrap(err)
	}
	expiresAt, err := parseTime(fields[3])
	if err != nil {
		return nil, oops.With("field", "expires_at").Wrap(err)
	}
	return &auth.Token{
		Hash:      hash,
		Purpose:   auth.Purpose(fields[1]),
		AccountID: accountID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Compile-time interface check.
var _ auth.TokenRepository = (*TokenRepository)(nil)
