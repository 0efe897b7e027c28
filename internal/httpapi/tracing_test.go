// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/formgate/formgate/internal/logging"
)

func TestTraceable(t *testing.T) {
	tests := map[string]bool{
		"/api/auth/signup":                  true,
		"/api/auth/login":                   true,
		"/api/auth/email-verification":      true,
		"/api/auth/password-reset":          true,
		"/api/auth/email-verification/abcd": false,
		"/api/auth/password-reset/abcd":     false,
		"/api/auth/events":                  false,
	}
	for path, want := range tests {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		assert.Equal(t, want, traceable(req), path)
	}
}

func TestRouter_PropagatesTraceContextToLogs(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	env := newTestEnv(t)
	var buf bytes.Buffer
	srv := NewServer(env.flows, env.hub, WithLogger(logging.New(logging.Options{Writer: &buf})))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		bytes.NewBufferString(`{"email_address":"nobody@example.com","password":"whatever1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var found bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["msg"] != "http request" {
			continue
		}
		found = true
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
		assert.NotEmpty(t, entry["request_id"])
	}
	assert.True(t, found, "request log line missing: %s", buf.String())
}
