// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Account represents a registered user.
type Account struct {
	ID            ulid.ULID
	FirstName     string
	LastName      string
	Email         string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AccountView is the externally visible shape of an account. It never carries
// the password hash.
type AccountView struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email_address"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// View returns the public projection of the account.
func (a *Account) View() AccountView {
	return AccountView{
		ID:            a.ID.String(),
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Email:         a.Email,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
	}
}

// NormalizeEmail trims and lower-cases an address. All uniqueness checks and
// lookups operate on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewAccount builds an unverified account with a fresh ID. The email is
// normalized; the hash must already be computed.
func NewAccount(firstName, lastName, email, passwordHash string) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email address cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &Account{
		ID:           ulid.Make(),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CreateOutcome tags the result of an atomic create-if-absent.
type CreateOutcome int

// Create outcomes.
const (
	OutcomeCreated CreateOutcome = iota + 1
	OutcomeConflict
)

func (o CreateOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// CreateResult is returned by AccountRepository.CreateIfAbsent. Account is set
// only when Outcome is OutcomeCreated.
type CreateResult struct {
	Outcome CreateOutcome
	Account *Account
}

// Created reports a successful insert of account.
func Created(account *Account) CreateResult {
	return CreateResult{Outcome: OutcomeCreated, Account: account}
}

// Conflict reports that the normalized email is already taken.
func Conflict() CreateResult {
	return CreateResult{Outcome: OutcomeConflict}
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// CreateIfAbsent inserts the account unless its email is already taken.
	// The check and the insert must be one atomic storage operation.
	// A taken email is reported as OutcomeConflict, not as an error.
	CreateIfAbsent(ctx context.Context, account *Account) (CreateResult, error)

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by normalized email.
	// Returns ErrNotFound if no account has the given email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// MarkEmailVerified sets the verified flag. Setting it twice is a no-op.
	MarkEmailVerified(ctx context.Context, id ulid.ULID) error
}
