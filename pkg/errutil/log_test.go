// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formgate/formgate/pkg/errutil"
)

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output: %s", buf.String())
	return entry
}

func TestLog_OopsError(t *testing.T) {
	var buf bytes.Buffer
	err := oops.Code("NOTIFY_SEND_FAILED").
		With("template", "verify_email").
		Errorf("smtp: 451 try again later")

	errutil.Log(context.Background(), jsonLogger(&buf), slog.LevelError, "notification dispatch failed", err,
		"account_id", "01HZX")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "notification dispatch failed", entry["msg"])
	assert.Equal(t, "NOTIFY_SEND_FAILED", entry["code"])
	assert.Equal(t, "01HZX", entry["account_id"])
	assert.Contains(t, entry["error"], "451 try again later")

	errCtx, ok := entry["context"].(map[string]any)
	require.True(t, ok, "context should be an object")
	assert.Equal(t, "verify_email", errCtx["template"])
}

func TestLog_PlainError(t *testing.T) {
	var buf bytes.Buffer
	errutil.Log(context.Background(), jsonLogger(&buf), slog.LevelInfo, "auth flow refused",
		errors.New("credentials rejected"))

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "credentials rejected", entry["error"])
	assert.NotContains(t, entry, "code")
	assert.NotContains(t, entry, "context")
}

func TestLog_NilLoggerUsesDefault(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(jsonLogger(&buf))
	t.Cleanup(func() { slog.SetDefault(prev) })

	errutil.Log(context.Background(), nil, slog.LevelWarn, "fallback", errors.New("x"))
	assert.Equal(t, "fallback", decodeEntry(t, &buf)["msg"])
}

func TestCode(t *testing.T) {
	coded := oops.Code("TOKEN_EXPIRED").Errorf("expired")

	assert.Equal(t, "TOKEN_EXPIRED", errutil.Code(coded))
	assert.Equal(t, "TOKEN_EXPIRED", errutil.Code(oops.With("purpose", "verify").Wrap(coded)))
	assert.Equal(t, "TOKEN_EXPIRED", errutil.Code(fmt.Errorf("consume: %w", coded)))
	assert.Empty(t, errutil.Code(errors.New("plain")))
	assert.Empty(t, errutil.Code(oops.Errorf("uncoded")))
}
