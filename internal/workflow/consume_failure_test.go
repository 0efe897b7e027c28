// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formgate/formgate/internal/auth"
	"github.com/formgate/formgate/internal/notify"
)

var errAccountWrite = errors.New("account write: connection reset")

// failingWrites serves reads from the embedded store and fails the writes
// that follow a token redemption.
type failingWrites struct {
	*auth.CredentialStore
}

func (failingWrites) ReplacePassword(context.Context, ulid.ULID, string) error {
	return errAccountWrite
}

func (failingWrites) MarkEmailVerified(context.Context, ulid.ULID) error {
	return errAccountWrite
}

func (h *harness) withFailingWrites(t *testing.T) *Controller {
	t.Helper()
	ctrl, err := NewController(Config{BaseURL: testBaseURL},
		failingWrites{h.creds}, h.issuer, h.outbox, h.announced)
	require.NoError(t, err)
	return ctrl
}

func TestVerifyEmail_WriteFailureSendsNewLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.signup(t, "ada@example.com", "correct horse")
	first := h.outbox.last(t)

	_, err := h.withFailingWrites(t).VerifyEmail(ctx, tokenFrom(t, first))
	require.Error(t, err)
	assert.Equal(t, KindServer, Classify(err))

	require.Len(t, h.outbox.all(), 2)
	second := h.outbox.last(t)
	assert.Equal(t, notify.KindConfirmEmail, second.Kind)
	assert.NotEqual(t, first.URL, second.URL)

	_, err = h.ctrl.VerifyEmail(ctx, tokenFrom(t, first))
	assert.Equal(t, KindTokenNotFound, Classify(err), "the redeemed link stays spent")

	verified, err := h.ctrl.VerifyEmail(ctx, tokenFrom(t, second))
	require.NoError(t, err)
	assert.Equal(t, account.ID, verified.ID)
	assert.True(t, verified.EmailVerified)
}

func TestResetPassword_WriteFailureSendsNewLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signup(t, "ada@example.com", "correct horse")
	require.NoError(t, h.ctrl.RequestPasswordReset(ctx, ResetRequestInput{Email: "ada@example.com"}))
	first := h.outbox.last(t)

	err := h.withFailingWrites(t).ResetPassword(ctx, ResetSubmission{
		Token:           tokenFrom(t, first),
		NewPassword:     "new password",
		ConfirmPassword: "new password",
	})
	require.Error(t, err)
	assert.Equal(t, KindServer, Classify(err))

	second := h.outbox.last(t)
	assert.Equal(t, notify.KindPasswordReset, second.Kind)
	assert.NotEqual(t, first.URL, second.URL)

	_, err = h.ctrl.Login(ctx, LoginInput{Email: "ada@example.com", Password: "correct horse"}, "")
	require.NoError(t, err, "password unchanged")

	err = h.ctrl.ResetPassword(ctx, ResetSubmission{
		Token:           tokenFrom(t, first),
		NewPassword:     "new password",
		ConfirmPassword: "new password",
	})
	assert.Equal(t, KindTokenNotFound, Classify(err))

	require.NoError(t, h.ctrl.ResetPassword(ctx, ResetSubmission{
		Token:           tokenFrom(t, second),
		NewPassword:     "new password",
		ConfirmPassword: "new password",
	}))
}
