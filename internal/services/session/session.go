// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session issues the bearer tokens handed out on login.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any bearer token that does not validate.
var ErrInvalidToken = errors.New("token is invalid or expired")

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// Default lifetimes.
const (
	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour
)

// Claims are the JWT claims of both token types.
type Claims struct {
	Role models.Role `json:"role,omitempty"`
	Type TokenType   `json:"typ"`
	jwt.RegisteredClaims
}

// Pair is the result of a login.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Issuer signs and parses tokens.
type Issuer struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Config holds the issuer settings.
type Config struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewIssuer creates an Issuer.
func NewIssuer(cfg Config) *Issuer {
	mac := hmac.New(sha256.New, cfg.Secret)
	mac.Write([]byte("session-jwt"))

	iss := &Issuer{
		key:        mac.Sum(nil),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}
	if iss.accessTTL <= 0 {
		iss.accessTTL = DefaultAccessTTL
	}
	if iss.refreshTTL <= 0 {
		iss.refreshTTL = DefaultRefreshTTL
	}
	if iss.now == nil {
		iss.now = time.Now
	}
	return iss
}

// IssuePair signs a fresh access and refresh token for user.
func (i *Issuer) IssuePair(user *models.User) (Pair, error) {
	access, err := i.IssueAccess(user)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.sign(user, TypeRefresh, i.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// IssueAccess signs a fresh access token for user.
func (i *Issuer) IssueAccess(user *models.User) (string, error) {
	return i.sign(user, TypeAccess, i.accessTTL)
}

func (i *Issuer) sign(user *models.User, typ TokenType, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if typ == TypeAccess {
		claims.Role = user.Role
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Parse validates a token of the expected type and returns its claims.
func (i *Issuer) Parse(token string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Type != want || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return i.key, nil
}
