// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

// Package notify delivers account emails that carry token links.
//
// The auth workflows only decide what to send; a Dispatcher decides how.
// Rendering is deliberately plain: the message body is a greeting and the
// link.
package notify

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies the email to send.
type Kind string

// Notification kinds.
const (
	KindConfirmEmail  Kind = "confirm-email"
	KindPasswordReset Kind = "password-reset"
)

// Notification is everything a dispatcher needs to send one email.
// URL embeds a token plaintext and must not be logged.
type Notification struct {
	Kind      Kind
	To        string
	FirstName string
	LastName  string
	URL       string
}

// Dispatcher sends notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, n Notification) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Subject returns the email subject for kind.
func Subject(kind Kind) string {
	switch kind {
	case KindConfirmEmail:
		return "Confirm your email address"
	case KindPasswordReset:
		return "Reset your password"
	default:
		return "Account notification"
	}
}

// Body renders the plain-text message body.
func Body(n Notification) string {
	var b strings.Builder
	name := strings.TrimSpace(n.FirstName + " " + n.LastName)
	if name == "" {
		b.WriteString("Hello,\r\n\r\n")
	} else {
		fmt.Fprintf(&b, "Hello %s,\r\n\r\n", name)
	}

	switch n.Kind {
	case KindConfirmEmail:
		b.WriteString("Please confirm your email address by opening the link below.\r\n\r\n")
	case KindPasswordReset:
		b.WriteString("We received a request to reset your password. Open the link below to choose a new one.\r\n")
		b.WriteString("If you did not ask for this, you can ignore this email.\r\n\r\n")
	}
	b.WriteString(n.URL)
	b.WriteString("\r\n")
	return b.String()
}
