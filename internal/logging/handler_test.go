// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry), "not JSON: %s", buf.String())
	return entry
}

func TestNew_Identity(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Service: "formgate", Version: "v0.3.1", Writer: &buf}).Info("ready")

	entry := lastEntry(t, &buf)
	assert.Equal(t, "ready", entry["msg"])
	assert.Equal(t, "formgate", entry["service"])
	assert.Equal(t, "v0.3.1", entry["version"])
	assert.Equal(t, "INFO", entry["level"])

	buf.Reset()
	New(Options{Writer: &buf}).Info("anonymous")
	assert.NotContains(t, lastEntry(t, &buf), "service")
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Service: "formgate-prune", Format: "text", Writer: &buf}).Warn("pruned", "count", 4)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "service=formgate-prune")
	assert.Contains(t, out, "count=4")
}

func TestContextHandler_Trace(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("b7ad6b7169203331")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	var buf bytes.Buffer
	logger := New(Options{Writer: &buf})

	logger.InfoContext(ctx, "with span")
	entry := lastEntry(t, &buf)
	assert.Equal(t, traceID.String(), entry["trace_id"])
	assert.Equal(t, spanID.String(), entry["span_id"])

	logger.InfoContext(context.Background(), "without span")
	entry = lastEntry(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestContextHandler_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf}).With("component", "httpapi")

	var seen string
	h := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = middleware.GetReqID(r.Context())
		logger.InfoContext(r.Context(), "handling")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))

	require.NotEmpty(t, seen)
	entry := lastEntry(t, &buf)
	assert.Equal(t, seen, entry["request_id"])
	assert.Equal(t, "httpapi", entry["component"], "WithAttrs keeps the context decoration")
}

func TestNew_Redaction(t *testing.T) {
	tests := map[string][]any{
		"top level":   {"password", "hunter22hunter22"},
		"mixed case":  {"Token", "hunter22hunter22"},
		"smtp secret": {"smtp_password", "hunter22hunter22"},
		"in group":    {slog.Group("req", slog.String("new_password", "hunter22hunter22"))},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			New(Options{Writer: &buf}).Info("credential event", append(args, "email_address", "ada@example.com")...)

			assert.NotContains(t, buf.String(), "hunter22hunter22")
			assert.Contains(t, buf.String(), Redacted)
			assert.Contains(t, buf.String(), "ada@example.com")
		})
	}
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	logger := New(Options{Writer: &buf, Level: level})

	logger.Info("suppressed")
	assert.Empty(t, buf.String())

	level.Set(slog.LevelDebug)
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

func TestSetDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := SetDefault(Options{Service: "formgate", Writer: &bytes.Buffer{}})
	assert.Same(t, logger, slog.Default())
}
