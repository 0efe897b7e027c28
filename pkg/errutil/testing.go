// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RequireOops fails the test unless err carries oops metadata.
func RequireOops(t testing.TB, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.Truef(t, ok, "want an oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode checks the innermost oops code on err's chain.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	assert.Equalf(t, code, Code(RequireOops(t, err)), "error: %v", err)
}

// AssertErrorContext checks one key of the merged oops context.
func AssertErrorContext(t testing.TB, err error, key string, value any) {
	t.Helper()
	got, ok := RequireOops(t, err).Context()[key]
	if assert.Truef(t, ok, "context key %q missing", key) {
		assert.Equal(t, value, got)
	}
}
