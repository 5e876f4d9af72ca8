// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers implements the JSON endpoints of the accounts API.
package handlers

import (
	"errors"
	"net/http"

	"codeberg.org/oliverandrich/go-accounts/internal/i18n"
	"codeberg.org/oliverandrich/go-accounts/internal/services/auth"
	"codeberg.org/oliverandrich/go-accounts/internal/services/media"
	"github.com/labstack/echo/v4"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	auth  *auth.Service
	media media.Store
}

// New creates a new Handlers instance.
func New(authSvc *auth.Service, store media.Store) *Handlers {
	return &Handlers{auth: authSvc, media: store}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

var errMalformedRequest = errors.New("malformed request body")

// bind decodes the request body into dst.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errMalformedRequest
	}
	return nil
}

func message(c echo.Context, status int, key, messageID string) error {
	return c.JSON(status, map[string]string{key: i18n.T(c.Request().Context(), messageID)})
}
