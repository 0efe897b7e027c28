// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", opts...)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx // test-local URL
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func readiness(t *testing.T, server *Server) (int, ReadinessReport) {
	t.Helper()
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil))

	var report ReadinessReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, report
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server := startServer(t, WithBuildInfo("v1.2.3", "abc123"))

	m := server.Metrics()
	m.RequestsTotal.WithLabelValues("/api/auth/signup", http.MethodPost, "201").Inc()
	m.RequestsTotal.WithLabelValues("/api/auth/signup", http.MethodPost, "201").Inc()
	m.RequestDuration.WithLabelValues("/api/auth/signup", http.MethodPost).Observe(0.02)
	m.EventStreams.Set(3)

	code, body := get(t, "http://"+server.Addr()+"/metrics")
	require.Equal(t, http.StatusOK, code)

	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `formgate_http_requests_total{method="POST",route="/api/auth/signup",status="201"} 2`)
	assert.Contains(t, body, "formgate_http_request_duration_seconds_bucket")
	assert.Contains(t, body, "formgate_event_streams 3")
	assert.Contains(t, body, `formgate_build_info{commit="abc123",version="v1.2.3"} 1`)
}

func TestServer_Liveness(t *testing.T) {
	server := startServer(t, WithCheck("postgres", func(context.Context) error {
		return errors.New("down")
	}))

	code, body := get(t, "http://"+server.Addr()+"/healthz/liveness")
	assert.Equal(t, http.StatusOK, code, "liveness ignores dependencies")
	assert.Equal(t, "ok\n", body)
}

func TestServer_Readiness(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		code, report := readiness(t, NewServer("127.0.0.1:0"))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", report.Status)
		assert.Empty(t, report.Checks)
	})

	t.Run("all pass", func(t *testing.T) {
		server := NewServer("127.0.0.1:0",
			WithCheck("postgres", func(context.Context) error { return nil }),
			WithCheck("redis", func(context.Context) error { return nil }),
		)
		code, report := readiness(t, server)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, report.Checks)
	})

	t.Run("one fails", func(t *testing.T) {
		server := NewServer("127.0.0.1:0",
			WithCheck("postgres", func(context.Context) error { return nil }),
			WithCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
		)
		code, report := readiness(t, server)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unavailable", report.Status)
		assert.Equal(t, "ok", report.Checks["postgres"])
		assert.Equal(t, "unavailable", report.Checks["redis"])
	})

	t.Run("nil probe is ignored", func(t *testing.T) {
		code, report := readiness(t, NewServer("127.0.0.1:0", WithCheck("noop", nil)))
		assert.Equal(t, http.StatusOK, code)
		assert.NotContains(t, report.Checks, "noop")
	})

	t.Run("probes run with a deadline", func(t *testing.T) {
		var hadDeadline bool
		server := NewServer("127.0.0.1:0", WithCheck("db", func(ctx context.Context) error {
			_, hadDeadline = ctx.Deadline()
			return nil
		}))
		readiness(t, server)
		assert.True(t, hadDeadline)
	})
}

func TestServer_WithRegistration(t *testing.T) {
	extra := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "formgate_test_extra_total",
		Help: "Counter registered through WithRegistration",
	})
	server := NewServer("127.0.0.1:0", WithRegistration(func(reg prometheus.Registerer) {
		reg.MustRegister(extra)
	}))
	extra.Add(5)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "formgate_test_extra_total 5")
}

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RequestsTotal.WithLabelValues("/x", http.MethodGet, "200").Inc()

	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/x", http.MethodGet, "200")), 0)
	assert.Panics(t, func() { NewMetrics(reg) }, "second registration collides")
}

func TestServer_Lifecycle(t *testing.T) {
	t.Run("addr empty before start", func(t *testing.T) {
		assert.Empty(t, NewServer("127.0.0.1:0").Addr())
	})

	t.Run("double start fails", func(t *testing.T) {
		server := startServer(t)
		_, err := server.Start()
		require.Error(t, err)
	})

	t.Run("stop without start is a no-op", func(t *testing.T) {
		require.NoError(t, NewServer("127.0.0.1:0").Stop(context.Background()))
	})

	t.Run("listen failure", func(t *testing.T) {
		taken := startServer(t)
		server := NewServer(taken.Addr())
		_, err := server.Start()
		require.Error(t, err)

		// A failed start leaves the server startable.
		assert.Empty(t, server.Addr())
	})

	t.Run("error channel closes on shutdown", func(t *testing.T) {
		server := NewServer("127.0.0.1:0")
		errCh, err := server.Start()
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, server.Stop(ctx))

		select {
		case err, ok := <-errCh:
			if ok {
				assert.NoError(t, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("error channel not closed after Stop")
		}
	})

	t.Run("serve errors are reported", func(t *testing.T) {
		server := NewServer("127.0.0.1:0")
		errCh, err := server.Start()
		require.NoError(t, err)

		server.mu.Lock()
		_ = server.listener.Close()
		server.mu.Unlock()

		select {
		case err := <-errCh:
			assert.Error(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("serve error not propagated")
		}
		_ = server.Stop(context.Background())
	})
}
