// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenBytes is the entropy of a token ID: 32 bytes = 64 hex chars.
const TokenBytes = 32

// Default token lifetimes.
const (
	DefaultVerificationTTL = 24 * time.Hour
	DefaultResetTTL        = time.Hour
)

// Purpose scopes a token to one flow.
type Purpose string

// Token purposes.
const (
	PurposeVerification Purpose = "verification"
	PurposeReset        Purpose = "reset"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeVerification || p == PurposeReset
}

// Token is a single-use secret bound to an account and a purpose.
//
// ID is the plaintext and is only populated on the value returned by
// TokenIssuer.Issue. Storage only ever sees Hash.
type Token struct {
	ID         string
	Hash       string
	Purpose    Purpose
	AccountID  ulid.ULID
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Consumed reports whether the token has been redeemed.
func (t *Token) Consumed() bool {
	return t.ConsumedAt != nil
}

// ExpiredAt reports whether the token is past its expiry at now.
func (t *Token) ExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TokenPolicy holds per-purpose lifetimes.
type TokenPolicy struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// DefaultTokenPolicy returns the default lifetimes.
func DefaultTokenPolicy() TokenPolicy {
	return TokenPolicy{
		VerificationTTL: DefaultVerificationTTL,
		ResetTTL:        DefaultResetTTL,
	}
}

// TTL returns the lifetime for purpose.
func (p TokenPolicy) TTL(purpose Purpose) time.Duration {
	switch purpose {
	case PurposeReset:
		if p.ResetTTL > 0 {
			return p.ResetTTL
		}
		return DefaultResetTTL
	default:
		if p.VerificationTTL > 0 {
			return p.VerificationTTL
		}
		return DefaultVerificationTTL
	}
}

// GenerateToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
func GenerateToken() (token, hash string, err error) {
	buf := make([]byte, TokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(buf)
	return token, HashToken(token), nil
}

// HashToken computes the hex SHA-256 of a plaintext token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenRepository persists tokens, one slot per (account, purpose).
type TokenRepository interface {
	// Put stores token in its (account, purpose) slot. Any previous token in the
	// slot, consumed or not, is replaced in the same atomic write.
	Put(ctx context.Context, token *Token) error

	// Consume marks the unconsumed token with the given hash and purpose as
	// consumed at now, and returns it. The lookup and the write are one atomic
	// operation. Returns ErrNotFound if no unconsumed token matches.
	// Expiry is not checked here.
	Consume(ctx context.Context, tokenHash string, purpose Purpose, now time.Time) (*Token, error)

	// DeleteExpired removes tokens that expired before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
