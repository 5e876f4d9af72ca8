// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package tokens issues and verifies the stateless links mailed to users for
// email verification and password reset.
//
// A link has two path segments. The first is the base64url encoded user id.
// The second is a securecookie value, named after the link purpose, carrying
// the issue time and a keyed fingerprint of the user's mutable state. Changing
// that state (a new password, a later login) invalidates every link issued
// before, so no token table is needed.
package tokens

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

// ErrInvalidLink is returned for every link that does not verify.
var ErrInvalidLink = errors.New("invalid or expired link")

// Purpose scopes a link to one flow.
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify-email"
	PurposePasswordReset Purpose = "password-reset"
)

// DefaultTTL is how long a link stays valid unless configured otherwise.
const DefaultTTL = 72 * time.Hour

const (
	fingerprintSize = 16
	maxClockSkew    = time.Minute
)

// UserLookup loads the subject of a link.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Link is an issued verification link.
type Link struct {
	UID   string
	Token string
}

// Path returns the link as "{uid}/{token}".
func (l Link) Path() string {
	return l.UID + "/" + l.Token
}

type payload struct {
	IssuedAt    int64  `json:"t"`
	Fingerprint []byte `json:"f"`
}

// Codec issues and verifies links.
type Codec struct {
	users          UserLookup
	cookie         *securecookie.SecureCookie
	fingerprintKey []byte
	ttl            time.Duration
	now            func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithTTL sets the link lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// New creates a Codec. All keys are derived from secret.
func New(users UserLookup, secret []byte, opts ...Option) *Codec {
	cookie := securecookie.New(deriveKey(secret, "link-hash"), deriveKey(secret, "link-block"))
	cookie.SetSerializer(securecookie.JSONEncoder{})
	// Expiry is checked against our own clock.
	cookie.MaxAge(0)

	c := &Codec{
		users:          users,
		cookie:         cookie,
		fingerprintKey: deriveKey(secret, "link-fingerprint"),
		ttl:            DefaultTTL,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured link lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue creates a link for user and purpose.
func (c *Codec) Issue(user *models.User, purpose Purpose) (Link, error) {
	token, err := c.cookie.Encode(string(purpose), payload{
		IssuedAt:    c.now().Unix(),
		Fingerprint: c.fingerprint(user, purpose),
	})
	if err != nil {
		return Link{}, fmt.Errorf("encode %s token: %w", purpose, err)
	}

	return Link{
		UID:   base64.RawURLEncoding.EncodeToString([]byte(user.ID)),
		Token: token,
	}, nil
}

// Verify resolves a link back to its user. Any failure to verify yields
// ErrInvalidLink; only storage failures are returned as other errors.
func (c *Codec) Verify(ctx context.Context, uid, token string, purpose Purpose) (*models.User, error) {
	raw, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return nil, c.reject(ctx, purpose, "bad_uid")
	}
	id, err := uuid.Parse(string(raw))
	if err != nil {
		return nil, c.reject(ctx, purpose, "bad_uid")
	}

	var p payload
	if err := c.cookie.Decode(string(purpose), token, &p); err != nil {
		return nil, c.reject(ctx, purpose, "bad_signature")
	}

	issued := time.Unix(p.IssuedAt, 0)
	now := c.now()
	if issued.After(now.Add(maxClockSkew)) {
		return nil, c.reject(ctx, purpose, "issued_in_future")
	}
	if now.Sub(issued) > c.ttl {
		return nil, c.reject(ctx, purpose, "expired")
	}

	user, err := c.users.GetUserByID(ctx, id.String())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, c.reject(ctx, purpose, "unknown_user")
	}
	if err != nil {
		return nil, fmt.Errorf("load link subject: %w", err)
	}

	if subtle.ConstantTimeCompare(p.Fingerprint, c.fingerprint(user, purpose)) != 1 {
		return nil, c.reject(ctx, purpose, "state_changed")
	}

	return user, nil
}

func (c *Codec) reject(ctx context.Context, purpose Purpose, reason string) error {
	slog.DebugContext(ctx, "link_rejected", "purpose", string(purpose), "reason", reason)
	return ErrInvalidLink
}

// fingerprint binds a link to the user state that must not change while the
// link is outstanding. Timestamps are truncated to seconds so the value
// survives a database round trip.
func (c *Codec) fingerprint(user *models.User, purpose Purpose) []byte {
	mac := hmac.New(sha256.New, c.fingerprintKey)
	write := func(s string) {
		mac.Write([]byte(s))
		mac.Write([]byte{0})
	}

	write(string(purpose))
	write(user.ID)
	write(user.Email)
	write(user.PasswordHash)

	switch purpose {
	case PurposeVerifyEmail:
		write(strconv.FormatInt(user.CreatedAt.Unix(), 10))
	case PurposePasswordReset:
		lastLogin := ""
		if user.LastLoginAt != nil {
			lastLogin = strconv.FormatInt(user.LastLoginAt.Unix(), 10)
		}
		write(lastLogin)
	}

	return mac.Sum(nil)[:fingerprintSize]
}

// deriveKey derives an independent 32 byte key for label from secret.
func deriveKey(secret []byte, label string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(label))
	return mac.Sum(nil)
}
