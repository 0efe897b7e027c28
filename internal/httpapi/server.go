// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

// Package httpapi exposes the account workflows over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/formgate/formgate/internal/auth"
	"github.com/formgate/formgate/internal/broadcast"
	"github.com/formgate/formgate/internal/observability"
	"github.com/formgate/formgate/internal/workflow"
)

// AgentHeader carries the opaque ID a browser shares across its tabs.
const AgentHeader = "X-Agent-ID"

// DefaultHeartbeat is the SSE keep-alive interval.
const DefaultHeartbeat = 15 * time.Second

// Workflows is the set of operations the API serves.
type Workflows interface {
	Signup(ctx context.Context, in workflow.SignupInput) (*auth.Account, error)
	Login(ctx context.Context, in workflow.LoginInput, agentID string) (*auth.Account, error)
	VerifyEmail(ctx context.Context, token string) (*auth.Account, error)
	ResendConfirmation(ctx context.Context, in workflow.ResendInput) error
	RequestPasswordReset(ctx context.Context, in workflow.ResetRequestInput) error
	ResetPassword(ctx context.Context, in workflow.ResetSubmission) error
}

// Server holds the HTTP handlers.
type Server struct {
	flows     Workflows
	hub       *broadcast.Hub
	logger    *slog.Logger
	metrics   *observability.Metrics
	heartbeat time.Duration

	closing   chan struct{}
	closeOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records request counts and open event streams.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHeartbeat sets the SSE keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// NewServer creates a Server.
func NewServer(flows Workflows, hub *broadcast.Hub, opts ...Option) *Server {
	s := &Server{
		flows:     flows,
		hub:       hub,
		logger:    slog.Default(),
		heartbeat: DefaultHeartbeat,
		closing:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CloseStreams ends every open event stream. It is safe to call more than
// once and is meant for http.Server.RegisterOnShutdown, since Shutdown does
// not wait on or cancel long-lived requests by itself.
func (s *Server) CloseStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(otelhttp.NewMiddleware("formgate",
		otelhttp.WithFilter(traceable),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	))
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(secureHeaders)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)

		r.Get("/email-verification/{token}", s.handleVerifyEmail)
		r.Post("/email-verification", s.handleResendConfirmation)

		r.Post("/password-reset", s.handleResetRequest)
		r.Post("/password-reset/{token}", s.handleResetSubmit)

		r.Get("/events", s.handleEvents)
	})

	return r
}

// traceable excludes requests whose path carries a token secret, and the
// long-lived event stream, from tracing.
func traceable(r *http.Request) bool {
	p := r.URL.Path
	switch {
	case strings.HasPrefix(p, "/api/auth/email-verification/"),
		strings.HasPrefix(p, "/api/auth/password-reset/"),
		p == "/api/auth/events":
		return false
	}
	return true
}
