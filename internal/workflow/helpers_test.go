// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package workflow

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/formgate/formgate/internal/auth"
	"github.com/formgate/formgate/internal/auth/memory"
	"github.com/formgate/formgate/internal/notify"
)

const testBaseURL = "https://forms.example.test"

// cheapParams keep argon2 fast in tests.
var cheapParams = auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

// outbox captures dispatched notifications.
type outbox struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (o *outbox) Dispatch(_ context.Context, n notify.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, n)
	return nil
}

func (o *outbox) all() []notify.Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]notify.Notification(nil), o.sent...)
}

func (o *outbox) last(t *testing.T) notify.Notification {
	t.Helper()
	sent := o.all()
	require.NotEmpty(t, sent, "no notification dispatched")
	return sent[len(sent)-1]
}

// tokenFrom extracts the token from a notification link.
func tokenFrom(t *testing.T, n notify.Notification) string {
	t.Helper()
	i := strings.LastIndex(n.URL, "/")
	require.Positive(t, i)
	return n.URL[i+1:]
}

type announcement struct {
	agentID string
	kind    string
}

// announcements captures broadcast announcements.
type announcements struct {
	mu  sync.Mutex
	got []announcement
}

func (a *announcements) Announce(_ context.Context, agentID, kind string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.got = append(a.got, announcement{agentID: agentID, kind: kind})
}

func (a *announcements) all() []announcement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]announcement(nil), a.got...)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	ctrl      *Controller
	creds     *auth.CredentialStore
	issuer    *auth.TokenIssuer
	accounts  *memory.AccountRepository
	outbox    *outbox
	announced *announcements
	clock     *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	accounts := memory.NewAccountRepository()
	tokens := memory.NewTokenRepository()
	creds, err := auth.NewCredentialStore(accounts, auth.NewArgon2idHasherWithParams(cheapParams))
	require.NoError(t, err)

	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	issuer, err := auth.NewTokenIssuer(tokens, accounts, auth.WithClock(clk.Now))
	require.NoError(t, err)

	box := &outbox{}
	ann := &announcements{}
	ctrl, err := NewController(Config{BaseURL: testBaseURL + "/"}, creds, issuer, box, ann)
	require.NoError(t, err)

	return &harness{
		ctrl:      ctrl,
		creds:     creds,
		issuer:    issuer,
		accounts:  accounts,
		outbox:    box,
		announced: ann,
		clock:     clk,
	}
}

func (h *harness) signup(t *testing.T, email, password string) *auth.Account {
	t.Helper()
	account, err := h.ctrl.Signup(context.Background(), SignupInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Password:  password,
	})
	require.NoError(t, err)
	return account
}

// mockDispatcher is a testify mock for notify.Dispatcher.
type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, n notify.Notification) error {
	return m.Called(ctx, n).Error(0)
}

// mockCredentials is a testify mock for Credentials.
type mockCredentials struct {
	mock.Mock
}

func (m *mockCredentials) CreateAccount(ctx context.Context, params auth.NewAccountParams) (*auth.Account, error) {
	args := m.Called(ctx, params)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *mockCredentials) Authenticate(ctx context.Context, email, password string) (*auth.Account, error) {
	args := m.Called(ctx, email, password)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *mockCredentials) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *mockCredentials) ReplacePassword(ctx context.Context, id ulid.ULID, plaintext string) error {
	return m.Called(ctx, id, plaintext).Error(0)
}

func (m *mockCredentials) MarkEmailVerified(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

// mockTokens is a testify mock for Tokens.
type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) Issue(ctx context.Context, accountID ulid.ULID, purpose auth.Purpose) (*auth.Token, error) {
	args := m.Called(ctx, accountID, purpose)
	token, _ := args.Get(0).(*auth.Token)
	return token, args.Error(1)
}

func (m *mockTokens) ValidateAndConsume(ctx context.Context, tokenID string, purpose auth.Purpose) (*auth.Account, error) {
	args := m.Called(ctx, tokenID, purpose)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}
