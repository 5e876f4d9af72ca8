// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package testutil

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
	"codeberg.org/oliverandrich/go-accounts/internal/services/auth"
	"codeberg.org/oliverandrich/go-accounts/internal/services/session"
	"codeberg.org/oliverandrich/go-accounts/internal/services/tokens"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Settings of the services built by NewAuthService.
const (
	FrontendURL = "http://localhost:1573"
	TestSecret  = "test-secret"
	TestIssuer  = "test"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock at the current second.
func NewClock() *Clock {
	return &Clock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SentMail is a notification captured by Notifier.
type SentMail struct {
	Kind  string
	Email string
	Link  string
}

// Notifier records notifications instead of mailing them.
type Notifier struct {
	mu   sync.Mutex
	sent []SentMail
}

func (n *Notifier) record(kind string, user *models.User, link string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, SentMail{Kind: kind, Email: user.Email, Link: link})
}

func (n *Notifier) NotifyVerification(_ context.Context, u *models.User, link string) {
	n.record("verification", u, link)
}

func (n *Notifier) NotifyWelcome(_ context.Context, u *models.User) {
	n.record("welcome", u, "")
}

func (n *Notifier) NotifyPasswordReset(_ context.Context, u *models.User, link string) {
	n.record("password_reset", u, link)
}

func (n *Notifier) NotifyPasswordChanged(_ context.Context, u *models.User) {
	n.record("password_changed", u, "")
}

// Count returns how many notifications of kind were recorded.
func (n *Notifier) Count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.Kind == kind {
			c++
		}
	}
	return c
}

// All returns every recorded notification in order.
func (n *Notifier) All() []SentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentMail(nil), n.sent...)
}

// Last returns the most recent notification of kind.
func (n *Notifier) Last(kind string) SentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i]
		}
	}
	return SentMail{}
}

// NewAuthService wires an auth service with cheap bcrypt and the given
// notifier. A nil now uses the wall clock.
func NewAuthService(t *testing.T, repo *repository.Repository, notifier auth.Notifier, now func() time.Time) *auth.Service {
	t.Helper()
	if now == nil {
		now = time.Now
	}
	codec := tokens.New(repo, []byte(TestSecret), tokens.WithClock(now))
	sessions := NewSessionIssuer(now)
	cfg := &config.AuthConfig{FrontendURL: FrontendURL, PasswordMinLength: auth.DefaultPasswordMinLength}
	return auth.NewService(repo, codec, sessions, notifier, cfg,
		auth.WithBcryptCost(bcrypt.MinCost),
		auth.WithClock(now),
	)
}

// NewSessionIssuer returns the issuer NewAuthService signs tokens with.
func NewSessionIssuer(now func() time.Time) *session.Issuer {
	if now == nil {
		now = time.Now
	}
	return session.NewIssuer(session.Config{Secret: []byte(TestSecret), Issuer: TestIssuer, Now: now})
}

// SplitLink returns the uid and token of a mailed link below route.
func SplitLink(t *testing.T, link, route string) (uid, token string) {
	t.Helper()
	prefix := FrontendURL + "/" + route + "/"
	require.True(t, strings.HasPrefix(link, prefix), "unexpected link %q", link)
	require.True(t, strings.HasSuffix(link, "/"), "link without trailing slash %q", link)
	parts := strings.Split(strings.Trim(strings.TrimPrefix(link, prefix), "/"), "/")
	require.Len(t, parts, 2)
	return parts[0], parts[1]
}
