// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/go-accounts/internal/repository"
	"codeberg.org/oliverandrich/go-accounts/internal/services/tokens"
)

// RequestPasswordReset mails a reset link if an account exists for the
// address. The outcome is the same for unknown addresses.
func (s *Service) RequestPasswordReset(ctx context.Context, in PasswordResetRequestInput) error {
	in.Email = NormalizeEmail(in.Email)

	verr := NewValidationError()
	if err := fromOzzo(verr, in.Validate()); err != nil {
		return err
	}
	if !verr.Empty() {
		return verr
	}

	user, err := s.repo.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		slog.InfoContext(ctx, "password_reset_unknown_email")
		s.events.RecordAuthEvent("password_reset_request", "unknown")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	link, err := s.link(user, tokens.PurposePasswordReset, "reset-password")
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "password_reset_requested", "user_id", user.ID)
	s.events.RecordAuthEvent("password_reset_request", "sent")
	s.notifier.NotifyPasswordReset(ctx, user, link)
	return nil
}

// ConfirmPasswordReset sets a new password through a reset link. The link is
// checked before the password, so a bad link never reveals policy errors.
func (s *Service) ConfirmPasswordReset(ctx context.Context, uid, token, password string) error {
	user, err := s.links.Verify(ctx, uid, token, tokens.PurposePasswordReset)
	if err != nil {
		if errors.Is(err, ErrInvalidLink) {
			s.events.RecordAuthEvent("password_reset_confirm", "invalid")
		}
		return err
	}

	if err := s.setPassword(ctx, user, password); err != nil {
		return err
	}

	slog.InfoContext(ctx, "password_reset_success", "user_id", user.ID)
	s.events.RecordAuthEvent("password_reset_confirm", "success")
	s.notifier.NotifyPasswordChanged(ctx, user)
	return nil
}
