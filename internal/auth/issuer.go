// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenIssuer mints and redeems single-use tokens.
type TokenIssuer struct {
	tokens   TokenRepository
	accounts AccountRepository
	policy   TokenPolicy
	now      func() time.Time
}

// IssuerOption configures a TokenIssuer.
type IssuerOption func(*TokenIssuer)

// WithPolicy sets the token lifetimes.
func WithPolicy(policy TokenPolicy) IssuerOption {
	return func(i *TokenIssuer) { i.policy = policy }
}

// WithClock replaces time.Now. Used by tests to step past expiry.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *TokenIssuer) { i.now = now }
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(tokens TokenRepository, accounts AccountRepository, opts ...IssuerOption) (*TokenIssuer, error) {
	if tokens == nil {
		return nil, oops.Code("ISSUER_INVALID_CONFIG").Errorf("token repository is required")
	}
	if accounts == nil {
		return nil, oops.Code("ISSUER_INVALID_CONFIG").Errorf("account repository is required")
	}

	i := &TokenIssuer{
		tokens:   tokens,
		accounts: accounts,
		policy:   DefaultTokenPolicy(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Policy returns the lifetimes in effect.
func (i *TokenIssuer) Policy() TokenPolicy {
	return i.policy
}

// Issue mints a token for accountID and purpose, superseding any previous
// token of the same purpose on that account. The returned Token carries the
// plaintext ID; it is not recoverable afterwards.
func (i *TokenIssuer) Issue(ctx context.Context, accountID ulid.ULID, purpose Purpose) (*Token, error) {
	if !purpose.Valid() {
		return nil, oops.Code("TOKEN_INVALID_PURPOSE").With("purpose", string(purpose)).Errorf("unknown token purpose")
	}

	plaintext, hash, err := GenerateToken()
	if err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").With("operation", "generate token").Wrap(err)
	}

	now := i.now().UTC()
	token := &Token{
		ID:        plaintext,
		Hash:      hash,
		Purpose:   purpose,
		AccountID: accountID,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.policy.TTL(purpose)),
	}

	if err := i.tokens.Put(ctx, token); err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").
			With("operation", "put token").
			With("account_id", accountID.String()).
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return token, nil
}

// ValidateAndConsume redeems tokenID for purpose and returns the owning
// account. A token is consumed at most once; an expired token is consumed and
// reported as ErrTokenExpired.
func (i *TokenIssuer) ValidateAndConsume(ctx context.Context, tokenID string, purpose Purpose) (*Account, error) {
	if tokenID == "" || !purpose.Valid() {
		return nil, oops.Code("TOKEN_NOT_FOUND").With("purpose", string(purpose)).Wrap(ErrTokenNotFound)
	}

	now := i.now().UTC()
	token, err := i.tokens.Consume(ctx, HashToken(tokenID), purpose, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("TOKEN_NOT_FOUND").With("purpose", string(purpose)).Wrap(ErrTokenNotFound)
		}
		return nil, oops.Code("TOKEN_CONSUME_FAILED").
			With("operation", "consume token").
			With("purpose", string(purpose)).
			Wrap(err)
	}

	if token.ExpiredAt(now) {
		return nil, oops.Code("TOKEN_EXPIRED").
			With("purpose", string(purpose)).
			With("account_id", token.AccountID.String()).
			With("expired_at", token.ExpiresAt).
			Wrap(ErrTokenExpired)
	}

	account, err := i.accounts.GetByID(ctx, token.AccountID)
	if err != nil {
		return nil, oops.Code("TOKEN_CONSUME_FAILED").
			With("operation", "get owning account").
			With("account_id", token.AccountID.String()).
			Wrap(err)
	}
	return account, nil
}

// PruneExpired deletes tokens whose expiry lies before now minus grace.
func (i *TokenIssuer) PruneExpired(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := i.tokens.DeleteExpired(ctx, i.now().UTC().Add(-grace))
	if err != nil {
		return 0, oops.Code("TOKEN_PRUNE_FAILED").Wrap(err)
	}
	return n, nil
}
