// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "Confirm your email address", Subject(KindConfirmEmail))
	assert.Equal(t, "Reset your password", Subject(KindPasswordReset))
	assert.Equal(t, "Account notification", Subject(Kind("other")))
}

func TestBody(t *testing.T) {
	tests := []struct {
		name     string
		n        Notification
		contains []string
	}{
		{
			name: "confirm email greets by name",
			n: Notification{
				Kind:      KindConfirmEmail,
				FirstName: "Ada",
				LastName:  "Lovelace",
				URL:       "https://example.test/api/auth/email-verification/abc",
			},
			contains: []string{"Hello Ada Lovelace,", "confirm your email", "/api/auth/email-verification/abc"},
		},
		{
			name:     "reset without name",
			n:        Notification{Kind: KindPasswordReset, URL: "https://example.test/reset/xyz"},
			contains: []string{"Hello,", "reset your password", "https://example.test/reset/xyz"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := Body(tt.n)
			for _, want := range tt.contains {
				assert.Contains(t, body, want)
			}
		})
	}
}

func TestLogDispatcher(t *testing.T) {
	n := Notification{Kind: KindPasswordReset, To: "ada@example.test", URL: "https://example.test/secret-token"}

	t.Run("hides url by default", func(t *testing.T) {
		var buf bytes.Buffer
		d := NewLogDispatcher(slog.New(slog.NewJSONHandler(&buf, nil)), false)

		require.NoError(t, d.Dispatch(context.Background(), n))
		assert.Contains(t, buf.String(), `"to":"ada@example.test"`)
		assert.Contains(t, buf.String(), `"kind":"password-reset"`)
		assert.NotContains(t, buf.String(), "secret-token")
	})

	t.Run("reveals url when asked", func(t *testing.T) {
		var buf bytes.Buffer
		d := NewLogDispatcher(slog.New(slog.NewJSONHandler(&buf, nil)), true)

		require.NoError(t, d.Dispatch(context.Background(), n))
		assert.Contains(t, buf.String(), "secret-token")
	})
}
