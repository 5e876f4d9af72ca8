// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/go-accounts/internal/i18n"
	"codeberg.org/oliverandrich/go-accounts/internal/services/auth"
	"codeberg.org/oliverandrich/go-accounts/internal/services/media"
	"github.com/labstack/echo/v4"
)

// respondError translates a service error into its HTTP response. Errors
// without a mapping are logged and answered with a generic 500.
func respondError(c echo.Context, err error) error {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, verr.Fields)
	case errors.Is(err, errMalformedRequest):
		return message(c, http.StatusBadRequest, "detail", "msg_malformed_request")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return message(c, http.StatusUnauthorized, "detail", "msg_invalid_credentials")
	case errors.Is(err, auth.ErrUnauthenticated):
		return message(c, http.StatusUnauthorized, "detail", "msg_unauthenticated")
	case errors.Is(err, auth.ErrAccountNotVerified):
		return message(c, http.StatusBadRequest, "detail", "msg_account_not_verified")
	case errors.Is(err, auth.ErrInvalidLink):
		return message(c, http.StatusBadRequest, "detail", "msg_invalid_reset_link")
	case errors.Is(err, media.ErrUnsupportedType):
		return c.JSON(http.StatusBadRequest, map[string][]string{
			"profile_picture": {i18n.T(c.Request().Context(), "msg_unsupported_image")},
		})
	default:
		slog.ErrorContext(c.Request().Context(), "request_failed",
			"method", c.Request().Method,
			"route", c.Path(),
			"error", err,
		)
		return message(c, http.StatusInternalServerError, "detail", "msg_internal_error")
	}
}
