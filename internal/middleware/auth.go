// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware provides the Echo middleware of the accounts API.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/go-accounts/internal/appcontext"
	"codeberg.org/oliverandrich/go-accounts/internal/i18n"
	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"github.com/labstack/echo/v4"
)

// Authenticator resolves an access token to an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
}

// BearerAuth loads the user named by a valid "Authorization: Bearer" header
// into the context. Requests without a usable token pass through anonymous.
func BearerAuth(authn Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return next(c)
			}

			user, err := authn.Authenticate(c.Request().Context(), token)
			if err != nil {
				slog.DebugContext(c.Request().Context(), "bearer_rejected", "error", err)
				return next(c)
			}

			ac := appcontext.From(c)
			ac.SetUser(user)
			return next(ac)
		}
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !appcontext.From(c).IsAuthenticated() {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="api"`)
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"detail": i18n.T(c.Request().Context(), "msg_unauthenticated"),
			})
		}
		return next(c)
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
