// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package workflow

import (
	"errors"
	"sort"
	"strings"

	"github.com/formgate/formgate/internal/auth"
)

// Kind is the externally meaningful category of a workflow failure.
type Kind int

// Failure kinds. KindServer is the zero value so that anything unrecognized
// is treated as an internal failure.
const (
	KindServer Kind = iota
	KindValidation
	KindDuplicateEmail
	KindInvalidCredentials
	KindTokenNotFound
	KindTokenExpired
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindDuplicateEmail:
		return "duplicate_email"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindTokenNotFound:
		return "token_not_found"
	case KindTokenExpired:
		return "token_expired"
	default:
		return "server_error"
	}
}

// Public messages. Token failures share one message so a caller cannot
// probe which tokens ever existed.
const (
	MessageValidation         = "validation failed"
	MessageDuplicateEmail     = "an account with this email address already exists"
	MessageInvalidCredentials = "invalid email address or password"
	MessageInvalidToken       = "invalid or expired token"
	MessageServer             = "internal server error"
)

// PublicMessage returns the message safe to show for kind.
func PublicMessage(kind Kind) string {
	switch kind {
	case KindValidation:
		return MessageValidation
	case KindDuplicateEmail:
		return MessageDuplicateEmail
	case KindInvalidCredentials:
		return MessageInvalidCredentials
	case KindTokenNotFound, KindTokenExpired:
		return MessageInvalidToken
	default:
		return MessageServer
	}
}

// ValidationError reports rejected input fields. Fields maps the JSON field
// name to a human-readable reason.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError returns a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// Classify maps an error returned by a Controller method to its Kind.
func Classify(err error) Kind {
	var verr *ValidationError
	switch {
	case err == nil:
		return KindServer
	case errors.As(err, &verr):
		return KindValidation
	case errors.Is(err, auth.ErrDuplicateEmail):
		return KindDuplicateEmail
	case errors.Is(err, auth.ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, auth.ErrTokenExpired):
		return KindTokenExpired
	case errors.Is(err, auth.ErrTokenNotFound):
		return KindTokenNotFound
	default:
		return KindServer
	}
}
