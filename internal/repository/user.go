// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"github.com/google/uuid"
)

const userColumns = `id, email, name, password_hash, role, is_active, is_verified, is_staff,
	is_superuser, profile_picture, last_login_at, created_at, updated_at`

// CreateUser inserts a new user. ID and timestamps are assigned here.
// A concurrent insert with the same email fails with ErrDuplicateEmail.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = models.RoleStudent
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		VALUES (:id, :email, :name, :password_hash, :role, :is_active, :is_verified, :is_staff,
			:is_superuser, :profile_picture, :last_login_at, :created_at, :updated_at)`,
		user)
	return wrapError(err)
}

// GetUserByID retrieves a user by their ID
func (r *Repository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by their (normalized) email address
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// UserExistsByEmail checks if a user with the given email exists.
func (r *Repository) UserExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		r.db.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`), email)
	return exists, wrapError(err)
}

// SetUserActive enables or disables login for a user.
func (r *Repository) SetUserActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`),
		active, time.Now().UTC(), id)
	if err != nil {
		return wrapError(err)
	}
	return requireRow(res.RowsAffected())
}

// UpdateUserProfile writes only the self-editable profile fields.
func (r *Repository) UpdateUserProfile(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE users SET name = ?, profile_picture = ?, updated_at = ? WHERE id = ?`),
		user.Name, user.ProfilePicture, user.UpdatedAt, user.ID)
	if err != nil {
		return wrapError(err)
	}
	return requireRow(res.RowsAffected())
}

// UpdateUserPassword replaces a user's password hash.
func (r *Repository) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`),
		passwordHash, time.Now().UTC(), id)
	if err != nil {
		return wrapError(err)
	}
	return requireRow(res.RowsAffected())
}

// MarkUserVerified activates and verifies a user. It reports whether the row
// changed, so concurrent verifications of the same link activate exactly once.
func (r *Repository) MarkUserVerified(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE users SET is_active = ?, is_verified = ?, updated_at = ?
			WHERE id = ? AND is_verified = ?`),
		true, true, time.Now().UTC(), id, false)
	if err != nil {
		return false, wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateLastLogin records a successful login.
func (r *Repository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE users SET last_login_at = ? WHERE id = ?`), at.UTC(), id)
	return wrapError(err)
}

// CountSuperusers returns the number of superuser accounts
func (r *Repository) CountSuperusers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		r.db.Rebind(`SELECT COUNT(*) FROM users WHERE is_superuser = ?`), true)
	return count, wrapError(err)
}

func requireRow(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
