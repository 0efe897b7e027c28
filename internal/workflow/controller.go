// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package workflow

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/formgate/formgate/internal/auth"
	"github.com/formgate/formgate/internal/broadcast"
	"github.com/formgate/formgate/internal/notify"
	"github.com/formgate/formgate/pkg/errutil"
)

var tracer = otel.Tracer("formgate/workflow")

// DefaultDispatchTimeout bounds a single notification hand-off.
const DefaultDispatchTimeout = 10 * time.Second

// Link paths appended to the public base URL.
const (
	VerificationPath = "/api/auth/email-verification/"
	ResetPath        = "/password-reset/"
)

// Credentials is the subset of auth.CredentialStore the workflows use.
type Credentials interface {
	CreateAccount(ctx context.Context, params auth.NewAccountParams) (*auth.Account, error)
	Authenticate(ctx context.Context, email, password string) (*auth.Account, error)
	FindByEmail(ctx context.Context, email string) (*auth.Account, error)
	ReplacePassword(ctx context.Context, id ulid.ULID, plaintext string) error
	MarkEmailVerified(ctx context.Context, id ulid.ULID) error
}

// Tokens is the subset of auth.TokenIssuer the workflows use.
type Tokens interface {
	Issue(ctx context.Context, accountID ulid.ULID, purpose auth.Purpose) (*auth.Token, error)
	ValidateAndConsume(ctx context.Context, tokenID string, purpose auth.Purpose) (*auth.Account, error)
}

// Announcer tells other client contexts of a user agent that auth changed.
type Announcer interface {
	Announce(ctx context.Context, agentID, kind string)
}

// Config holds workflow settings.
type Config struct {
	// BaseURL is the public origin used to build links, e.g. https://app.example.com.
	BaseURL string
	// MinPasswordLength defaults to DefaultMinPasswordLength.
	MinPasswordLength int
	// DispatchTimeout defaults to DefaultDispatchTimeout.
	DispatchTimeout time.Duration
	// AllowedDomains and BlockedDomains are glob patterns for signup; see
	// DomainPolicy.
	AllowedDomains []string
	BlockedDomains []string
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return oops.Code("WORKFLOW_INVALID_CONFIG").Errorf("base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return oops.Code("WORKFLOW_INVALID_CONFIG").With("base_url", c.BaseURL).Errorf("base URL must be absolute")
	}
	if c.MinPasswordLength < 0 {
		return oops.Code("WORKFLOW_INVALID_CONFIG").Errorf("minimum password length cannot be negative")
	}
	return nil
}

// Controller runs the account workflows: signup, login, email verification,
// resend confirmation, and both halves of a password reset.
type Controller struct {
	creds      Credentials
	tokens     Tokens
	dispatcher notify.Dispatcher
	announcer  Announcer

	baseURL         string
	minPassword     int
	domains         DomainPolicy
	dispatchTimeout time.Duration
	logger          *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController creates a Controller.
func NewController(
	cfg Config,
	creds Credentials,
	tokens Tokens,
	dispatcher notify.Dispatcher,
	announcer Announcer,
	opts ...Option,
) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, oops.Code("WORKFLOW_INVALID_CONFIG").Errorf("credential store is required")
	}
	if tokens == nil {
		return nil, oops.Code("WORKFLOW_INVALID_CONFIG").Errorf("token issuer is required")
	}
	if dispatcher == nil {
		return nil, oops.Code("WORKFLOW_INVALID_CONFIG").Errorf("notification dispatcher is required")
	}
	if announcer == nil {
		return nil, oops.Code("WORKFLOW_INVALID_CONFIG").Errorf("announcer is required")
	}
	domains, err := NewDomainPolicy(cfg.AllowedDomains, cfg.BlockedDomains)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		creds:           creds,
		tokens:          tokens,
		dispatcher:      dispatcher,
		announcer:       announcer,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		minPassword:     cfg.MinPasswordLength,
		domains:         domains,
		dispatchTimeout: cfg.DispatchTimeout,
		logger:          slog.Default(),
	}
	if c.minPassword == 0 {
		c.minPassword = DefaultMinPasswordLength
	}
	if c.dispatchTimeout <= 0 {
		c.dispatchTimeout = DefaultDispatchTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MinPasswordLength returns the password length rule in effect.
func (c *Controller) MinPasswordLength() int {
	return c.minPassword
}

// Signup creates an unverified account and sends the confirmation email.
// A taken address yields an error classified as KindDuplicateEmail.
func (c *Controller) Signup(ctx context.Context, in SignupInput) (account *auth.Account, err error) {
	ctx, run := c.begin(ctx, FlowSignup, OutcomeCreated)
	defer func() { run.end(ctx, err) }()

	if err = in.Validate(c.minPassword); err != nil {
		return nil, err
	}
	if !c.domains.Permits(in.Email) {
		return nil, &ValidationError{Fields: map[string]string{
			"email_address": "email domain is not accepted",
		}}
	}

	account, err = c.creds.CreateAccount(ctx, auth.NewAccountParams{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  in.Password,
	})
	if err != nil {
		return nil, err
	}
	run.span.SetAttributes(attribute.String("account.id", account.ID.String()))

	// The account exists whether or not the email goes out; the user can
	// ask for a new confirmation link.
	c.issueAndSend(ctx, account, auth.PurposeVerification)
	return account, nil
}

// Login checks credentials and, on success, tells the other client contexts
// of agentID to reload their auth state. Every failure is reported as
// KindInvalidCredentials.
func (c *Controller) Login(ctx context.Context, in LoginInput, agentID string) (account *auth.Account, err error) {
	ctx, run := c.begin(ctx, FlowLogin, OutcomeAuthenticated)
	defer func() { run.end(ctx, err) }()

	if err = in.Validate(); err != nil {
		return nil, err
	}

	account, err = c.creds.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	run.span.SetAttributes(attribute.String("account.id", account.ID.String()))

	c.announcer.Announce(ctx, agentID, broadcast.KindReloadAuth)
	return account, nil
}

// VerifyEmail redeems a verification token and marks the owning account
// verified. If marking fails after the token was consumed, a new
// verification link is sent.
func (c *Controller) VerifyEmail(ctx context.Context, token string) (account *auth.Account, err error) {
	ctx, run := c.begin(ctx, FlowVerifyEmail, OutcomeVerified)
	defer func() { run.end(ctx, err) }()

	account, err = c.tokens.ValidateAndConsume(ctx, token, auth.PurposeVerification)
	if err != nil {
		return nil, err
	}
	run.span.SetAttributes(attribute.String("account.id", account.ID.String()))

	if err = c.creds.MarkEmailVerified(ctx, account.ID); err != nil {
		// The presented link is spent; mail a replacement.
		c.issueAndSend(ctx, account, auth.PurposeVerification)
		return nil, err
	}
	account.EmailVerified = true
	return account, nil
}

// ResendConfirmation issues a fresh verification link for an unverified
// account. The result does not reveal whether the address is registered.
func (c *Controller) ResendConfirmation(ctx context.Context, in ResendInput) (err error) {
	ctx, run := c.begin(ctx, FlowResend, OutcomeAccepted)
	defer func() { run.end(ctx, err) }()

	if err = in.Validate(); err != nil {
		return err
	}

	account, err := c.lookup(ctx, in.Email)
	if err != nil || account == nil {
		return err
	}
	if account.EmailVerified {
		return nil
	}

	c.issueAndSend(ctx, account, auth.PurposeVerification)
	return nil
}

// RequestPasswordReset issues a reset link if the address belongs to an
// account. The result does not reveal whether it does.
func (c *Controller) RequestPasswordReset(ctx context.Context, in ResetRequestInput) (err error) {
	ctx, run := c.begin(ctx, FlowResetRequest, OutcomeAccepted)
	defer func() { run.end(ctx, err) }()

	if err = in.Validate(); err != nil {
		return err
	}

	account, err := c.lookup(ctx, in.Email)
	if err != nil || account == nil {
		return err
	}

	c.issueAndSend(ctx, account, auth.PurposeReset)
	return nil
}

// ResetPassword redeems a reset token and replaces the account's password.
// Input is validated before the token is touched, so a typo in the
// confirmation does not burn the link. If the password write fails after the
// token was consumed, a new reset link is sent.
func (c *Controller) ResetPassword(ctx context.Context, in ResetSubmission) (err error) {
	ctx, run := c.begin(ctx, FlowResetSubmit, OutcomeReset)
	defer func() { run.end(ctx, err) }()

	if err = in.Validate(c.minPassword); err != nil {
		return err
	}

	account, err := c.tokens.ValidateAndConsume(ctx, in.Token, auth.PurposeReset)
	if err != nil {
		return err
	}
	run.span.SetAttributes(attribute.String("account.id", account.ID.String()))

	if err = c.creds.ReplacePassword(ctx, account.ID, in.NewPassword); err != nil {
		// The presented link is spent; mail a replacement.
		c.issueAndSend(ctx, account, auth.PurposeReset)
		return err
	}
	return nil
}

// lookup returns the account for email, or nil if none exists.
func (c *Controller) lookup(ctx context.Context, email string) (*auth.Account, error) {
	account, err := c.creds.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// issueAndSend mints a token for purpose and hands the link to the
// dispatcher. Failures are logged and counted; they never fail the caller's
// flow, and state already written is kept.
func (c *Controller) issueAndSend(ctx context.Context, account *auth.Account, purpose auth.Purpose) {
	kind, path := notify.KindConfirmEmail, VerificationPath
	if purpose == auth.PurposeReset {
		kind, path = notify.KindPasswordReset, ResetPath
	}

	token, err := c.tokens.Issue(ctx, account.ID, purpose)
	if err != nil {
		RecordDispatchFailure(string(kind))
		errutil.Log(ctx, c.logger, slog.LevelError, "token issue failed", err,
			"account_id", account.ID.String(),
			"purpose", string(purpose),
		)
		return
	}

	n := notify.Notification{
		Kind:      kind,
		To:        account.Email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
		URL:       c.baseURL + path + token.ID,
	}

	// Detached from the request so a client hanging up does not cancel
	// the email, but still bounded.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.dispatchTimeout)
	defer cancel()

	if err := c.dispatcher.Dispatch(dctx, n); err != nil {
		RecordDispatchFailure(string(kind))
		errutil.Log(ctx, c.logger, slog.LevelError, "notification dispatch failed", err,
			"account_id", account.ID.String(),
			"kind", string(kind),
		)
	}
}

type flowRun struct {
	c       *Controller
	flow    string
	success string
	start   time.Time
	span    trace.Span
}

func (c *Controller) begin(ctx context.Context, flow, success string) (context.Context, *flowRun) {
	ctx, span := tracer.Start(ctx, "auth."+flow,
		trace.WithAttributes(attribute.String("auth.flow", flow)),
	)
	return ctx, &flowRun{c: c, flow: flow, success: success, start: time.Now(), span: span}
}

func (r *flowRun) end(ctx context.Context, err error) {
	defer r.span.End()

	outcome := r.success
	if err != nil {
		kind := Classify(err)
		outcome = kind.String()
		r.span.SetAttributes(attribute.String("auth.failure", outcome))

		switch kind {
		case KindServer:
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, err.Error())
			errutil.Log(ctx, r.c.logger, slog.LevelError, "auth flow failed", err, "flow", r.flow)
		case KindValidation:
			r.c.logger.DebugContext(ctx, "auth flow rejected input", "flow", r.flow, "error", err.Error())
		default:
			errutil.Log(ctx, r.c.logger, slog.LevelInfo, "auth flow refused", err,
				"flow", r.flow,
				"outcome", outcome,
			)
		}
	}
	r.span.SetAttributes(attribute.String("auth.outcome", outcome))
	RecordFlow(r.flow, outcome, time.Since(r.start))
}
