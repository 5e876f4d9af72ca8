// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
)

// Profile returns the profile of the user with id.
func (s *Service) Profile(ctx context.Context, id string) (models.Profile, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Profile{}, ErrUnauthenticated
		}
		return models.Profile{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user.Profile(), nil
}

// UpdateProfile applies upd to the user with id. Only name and picture are
// writable; email and role stay as they are.
func (s *Service) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (models.Profile, error) {
	if err := upd.Validate(); err != nil {
		return models.Profile{}, err
	}

	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.Profile{}, ErrUnauthenticated
		}
		return models.Profile{}, fmt.Errorf("failed to get user: %w", err)
	}

	if upd.Name != nil {
		user.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.SetPicture {
		user.ProfilePicture = upd.ProfilePicture
	}

	if err := s.repo.UpdateUserProfile(ctx, user); err != nil {
		return models.Profile{}, fmt.Errorf("failed to update profile: %w", err)
	}

	slog.InfoContext(ctx, "profile_updated", "user_id", user.ID)
	return user.Profile(), nil
}
