// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package appcontext provides the custom Echo context and the authenticated
// user carried on the request.
package appcontext

import (
	"context"

	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"github.com/labstack/echo/v4"
)

type userKey struct{}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the user stored in ctx, or nil.
func UserFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey{}).(*models.User)
	return user
}

// Context is a custom Echo context with the authenticated user.
type Context struct {
	echo.Context
	User *models.User // nil if not authenticated
}

// GetUser returns the authenticated user, or nil if not authenticated.
func (c *Context) GetUser() *models.User {
	return c.User
}

// IsAuthenticated returns true if the user is authenticated.
func (c *Context) IsAuthenticated() bool {
	return c.User != nil
}

// SetUser stores user on the Echo context and on the request context.
func (c *Context) SetUser(user *models.User) {
	c.User = user
	c.SetRequest(c.Request().WithContext(WithUser(c.Request().Context(), user)))
}

// From returns c as a *Context. Plain Echo contexts are wrapped and pick up
// any user already stored on the request context.
func From(c echo.Context) *Context {
	if ac, ok := c.(*Context); ok {
		return ac
	}
	return &Context{Context: c, User: UserFrom(c.Request().Context())}
}

// Middleware replaces the Echo context with a *Context for downstream
// handlers.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(From(c))
		}
	}
}
