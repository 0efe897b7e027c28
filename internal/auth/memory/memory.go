// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

// Package memory provides in-process implementations of the auth
// repositories. Every operation holds the repository mutex for its whole
// duration, which gives the same atomicity the SQL implementations get from
// single statements.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/formgate/formgate/internal/auth"
)

// AccountRepository implements auth.AccountRepository in memory.
type AccountRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.Account
	byEmail map[string]ulid.ULID
}

// NewAccountRepository creates an empty AccountRepository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:    make(map[ulid.ULID]*auth.Account),
		byEmail: make(map[string]ulid.ULID),
	}
}

// CreateIfAbsent inserts account unless its normalized email is taken.
func (r *AccountRepository) CreateIfAbsent(_ context.Context, account *auth.Account) (auth.CreateResult, error) {
	email := auth.NormalizeEmail(account.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[email]; taken {
		return auth.Conflict(), nil
	}

	stored := *account
	stored.Email = email
	r.byID[stored.ID] = &stored
	r.byEmail[email] = stored.ID

	out := stored
	return auth.Created(&out), nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	out := *account
	return &out, nil
}

// GetByEmail retrieves an account by normalized email.
func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	out := *r.byID[id]
	return &out, nil
}

// UpdatePassword replaces the password hash.
func (r *AccountRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	return r.mutate(id, func(a *auth.Account) {
		a.PasswordHash = passwordHash
	})
}

// MarkEmailVerified sets the verified flag.
func (r *AccountRepository) MarkEmailVerified(_ context.Context, id ulid.ULID) error {
	return r.mutate(id, func(a *auth.Account) {
		a.EmailVerified = true
	})
}

func (r *AccountRepository) mutate(id ulid.ULID, fn func(*auth.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.byID[id]
	if !ok {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	fn(account)
	account.UpdatedAt = time.Now().UTC()
	return nil
}

type slotKey struct {
	account ulid.ULID
	purpose auth.Purpose
}

// TokenRepository implements auth.TokenRepository in memory.
type TokenRepository struct {
	mu     sync.Mutex
	slots  map[slotKey]*auth.Token
	byHash map[string]slotKey
}

// NewTokenRepository creates an empty TokenRepository.
func NewTokenRepository() *TokenRepository {
	return &TokenRepository{
		slots:  make(map[slotKey]*auth.Token),
		byHash: make(map[string]slotKey),
	}
}

// Put stores token in its slot, replacing the previous occupant.
func (r *TokenRepository) Put(_ context.Context, token *auth.Token) error {
	key := slotKey{account: token.AccountID, purpose: token.Purpose}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.slots[key]; ok {
		delete(r.byHash, prev.Hash)
	}

	stored := *token
	stored.ID = ""
	stored.ConsumedAt = nil
	r.slots[key] = &stored
	r.byHash[stored.Hash] = key
	return nil
}

// Consume marks the matching unconsumed token consumed and returns it.
func (r *TokenRepository) Consume(_ context.Context, tokenHash string, purpose auth.Purpose, now time.Time) (*auth.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.byHash[tokenHash]
	if !ok || key.purpose != purpose {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	token := r.slots[key]
	if token.Consumed() {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}

	consumedAt := now
	token.ConsumedAt = &consumedAt
	out := *token
	return &out, nil
}

// DeleteExpired removes tokens that expired before the cutoff.
func (r *TokenRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for key, token := range r.slots {
		if token.ExpiresAt.Before(before) {
			delete(r.byHash, token.Hash)
			delete(r.slots, key)
			n++
		}
	}
	return n, nil
}

// Compile-time interface checks.
var (
	_ auth.AccountRepository = (*AccountRepository)(nil)
	_ auth.TokenRepository   = (*TokenRepository)(nil)
)
