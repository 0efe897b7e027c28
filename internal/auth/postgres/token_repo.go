// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/formgate/formgate/internal/auth"
)

// TokenRepository implements auth.TokenRepository using PostgreSQL.
// account_tokens has primary key (account_id, purpose), so each account holds
// at most one token per purpose.
type TokenRepository struct {
	pool poolIface
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(pool poolIface) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// Put upserts the (account, purpose) slot. The previous token hash is
// overwritten in the same statement, so it can no longer be consumed.
func (r *TokenRepository) Put(ctx context.Context, token *auth.Token) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO account_tokens (account_id, purpose, token_hash, issued_at, expires_at, consumed_at)
		VALUES ($1, $2, $3, $4, $5, NULL)
		ON CONFLICT (account_id, purpose) DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			consumed_at = NULL
	`, token.AccountID.String(), string(token.Purpose), token.Hash, token.IssuedAt, token.ExpiresAt)
	if err != nil {
		return oops.Code("TOKEN_PUT_FAILED").
			With("operation", "upsert account_token").
			With("account_id", token.AccountID.String()).
			With("purpose", string(token.Purpose)).
			Wrap(err)
	}
	return nil
}

// Consume flips consumed_at in a single conditional UPDATE. Concurrent callers
// serialize on the row lock; only the first sees a returned row.
func (r *TokenRepository) Consume(ctx context.Context, tokenHash string, purpose auth.Purpose, now time.Time) (*auth.Token, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE account_tokens SET consumed_at = $3
		WHERE token_hash = $1 AND purpose = $2 AND consumed_at IS NULL
		RETURNING account_id, purpose, token_hash, issued_at, expires_at, consumed_at
	`, tokenHash, string(purpose), now)

	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").
			With("purpose", string(purpose)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_CONSUME_FAILED").
			With("operation", "consume account_token").
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return token, nil
}

// DeleteExpired removes tokens that expired before the cutoff.
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM account_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired account_tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanToken scans a single row into a Token.
// Callers are responsible for handling pgx.ErrNoRows.
func scanToken(row pgx.Row) (*auth.Token, error) {
	var (
		accountIDStr string
		purpose      string
		token        auth.Token
	)

	err := row.Scan(&accountIDStr, &purpose, &token.Hash, &token.IssuedAt, &token.ExpiresAt, &token.ConsumedAt)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	accountID, err := ulid.Parse(accountIDStr)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID_ACCOUNT_ID").
			With("operation", "parse account id").
			With("account_id", accountIDStr).
			Wrap(err)
	}
	token.AccountID = accountID
	token.Purpose = auth.Purpose(purpose)
	return &token, nil
}

// Compile-time interface check.
var _ auth.TokenRepository = (*TokenRepository)(nil)
