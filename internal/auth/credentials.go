// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dummyPassword is hashed once per store so that logins for unknown emails
// spend the same time in the hasher as logins for real accounts.
//
//nolint:gosec // G101: not a credential, never matches a stored hash.
const dummyPassword = "formgate-timing-equalizer"

// NewAccountParams are the inputs to CreateAccount.
type NewAccountParams struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// CredentialStore owns account records and is the only component that
// produces or compares password hashes.
type CredentialStore struct {
	accounts AccountRepository
	hasher   PasswordHasher

	dummyOnce sync.Once
	dummyHash string
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(accounts AccountRepository, hasher PasswordHasher) (*CredentialStore, error) {
	if accounts == nil {
		return nil, oops.Code("CREDENTIALS_INVALID_CONFIG").Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("CREDENTIALS_INVALID_CONFIG").Errorf("password hasher is required")
	}
	return &CredentialStore{accounts: accounts, hasher: hasher}, nil
}

// CreateAccount hashes the password and inserts the account if its normalized
// email is free. Returns an error wrapping ErrDuplicateEmail otherwise.
func (s *CredentialStore) CreateAccount(ctx context.Context, params NewAccountParams) (*Account, error) {
	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "hash password").Wrap(err)
	}

	account, err := NewAccount(params.FirstName, params.LastName, params.Email, hash)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "new account").Wrap(err)
	}

	result, err := s.accounts.CreateIfAbsent(ctx, account)
	if err != nil {
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "create if absent").
			Wrap(err)
	}

	switch result.Outcome {
	case OutcomeCreated:
		return result.Account, nil
	case OutcomeConflict:
		return nil, oops.Code("ACCOUNT_DUPLICATE_EMAIL").Wrap(ErrDuplicateEmail)
	default:
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").
			With("outcome", result.Outcome.String()).
			Errorf("unexpected create outcome")
	}
}

// FindByEmail looks up an account by email. The address is normalized first.
func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", "get by email").Wrap(err)
	}
	return account, nil
}

// FindByID looks up an account by ID.
func (s *CredentialStore) FindByID(ctx context.Context, id ulid.ULID) (*Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("operation", "get by id").
			With("account_id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// VerifyPassword reports whether plaintext matches the account's hash.
// A nil account is checked against a dummy hash and always yields false, so
// the caller can use one code path for unknown emails and wrong passwords.
func (s *CredentialStore) VerifyPassword(account *Account, plaintext string) bool {
	if account == nil {
		//nolint:errcheck // result is discarded; the call only equalizes timing
		s.hasher.Verify(plaintext, s.timingHash())
		return false
	}
	ok, err := s.hasher.Verify(plaintext, account.PasswordHash)
	return err == nil && ok
}

// Authenticate resolves an email/password pair to an account. Unknown emails
// and wrong passwords both yield ErrInvalidCredentials.
func (s *CredentialStore) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	account, err := s.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if !s.VerifyPassword(account, password) {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		// Best effort: a failed upgrade leaves the old, still valid hash in place.
		//nolint:errcheck // login succeeds regardless
		s.ReplacePassword(ctx, account.ID, password)
	}
	return account, nil
}

// ReplacePassword hashes plaintext and overwrites the stored hash.
func (s *CredentialStore) ReplacePassword(ctx context.Context, id ulid.ULID, plaintext string) error {
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return oops.Code("ACCOUNT_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	if err := s.accounts.UpdatePassword(ctx, id, hash); err != nil {
		return oops.Code("ACCOUNT_PASSWORD_FAILED").
			With("operation", "update password").
			With("account_id", id.String()).
			Wrap(err)
	}
	return nil
}

// MarkEmailVerified sets the verified flag on the account.
func (s *CredentialStore) MarkEmailVerified(ctx context.Context, id ulid.ULID) error {
	if err := s.accounts.MarkEmailVerified(ctx, id); err != nil {
		return oops.Code("ACCOUNT_VERIFY_FAILED").
			With("account_id", id.String()).
			Wrap(err)
	}
	return nil
}

func (s *CredentialStore) timingHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			// Still a syntactically valid argon2id hash that never matches.
			hash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
