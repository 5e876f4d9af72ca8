// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"codeberg.org/oliverandrich/go-accounts/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// Register creates an unverified account and mails the verification link.
func (h *Handlers) Register(c echo.Context) error {
	var in auth.RegisterInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}

	if _, err := h.auth.Register(c.Request().Context(), in); err != nil {
		return respondError(c, err)
	}

	return message(c, http.StatusCreated, "message", "msg_register_success")
}

// VerifyEmail activates the account named by the link.
func (h *Handlers) VerifyEmail(c echo.Context) error {
	err := h.auth.VerifyEmail(c.Request().Context(), c.Param("uid"), c.Param("token"))
	if errors.Is(err, auth.ErrInvalidLink) {
		return message(c, http.StatusBadRequest, "error", "msg_invalid_verification_link")
	}
	if err != nil {
		return respondError(c, err)
	}

	return message(c, http.StatusOK, "message", "msg_email_verified")
}

// Login exchanges credentials for an access and refresh token pair.
func (h *Handlers) Login(c echo.Context) error {
	var in auth.LoginInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}

	result, err := h.auth.Login(c.Request().Context(), in)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// Refresh issues a new access token for a valid refresh token.
func (h *Handlers) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	if req.Refresh == "" {
		verr := auth.NewValidationError()
		verr.Add("refresh", "This field is required.")
		return respondError(c, verr)
	}

	access, err := h.auth.Refresh(c.Request().Context(), req.Refresh)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"access": access})
}

// PasswordResetRequest mails a reset link. The response does not reveal
// whether the address belongs to an account.
func (h *Handlers) PasswordResetRequest(c echo.Context) error {
	var in auth.PasswordResetRequestInput
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}

	if err := h.auth.RequestPasswordReset(c.Request().Context(), in); err != nil {
		return respondError(c, err)
	}

	return message(c, http.StatusOK, "message", "msg_password_reset_sent")
}

type passwordResetConfirmRequest struct {
	Password string `json:"password"`
}

// PasswordResetConfirm sets a new password through a reset link.
func (h *Handlers) PasswordResetConfirm(c echo.Context) error {
	var req passwordResetConfirmRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	err := h.auth.ConfirmPasswordReset(c.Request().Context(), c.Param("uid"), c.Param("token"), req.Password)
	if err != nil {
		return respondError(c, err)
	}

	return message(c, http.StatusOK, "detail", "msg_password_reset_success")
}
