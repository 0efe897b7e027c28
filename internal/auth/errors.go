// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Domain outcomes surfaced to the workflow layer. Match them with errors.Is;
// repositories and services wrap them with oops context.
var (
	// ErrDuplicateEmail is returned when signup hits an already registered address.
	ErrDuplicateEmail = errors.New("email address already registered")

	// ErrInvalidCredentials is returned for any failed login, whatever the cause.
	ErrInvalidCredentials = errors.New("invalid email address or password")

	// ErrTokenNotFound covers tokens that were never issued, were superseded,
	// or were already consumed. The cases are deliberately indistinguishable.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired is returned when a token is presented after its expiry.
	// The token is consumed as a side effect.
	ErrTokenExpired = errors.New("token expired")
)
