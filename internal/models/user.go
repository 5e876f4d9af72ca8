// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"
)

// Role is the coarse authorization level of an account.
type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleInstructor Role = "INSTRUCTOR"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleInstructor
}

type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID             string     `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	Name           string     `db:"name" json:"name"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	Role           Role       `db:"role" json:"role"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	IsVerified     bool       `db:"is_verified" json:"is_verified"`
	IsStaff        bool       `db:"is_staff" json:"is_staff"`
	IsSuperuser    bool       `db:"is_superuser" json:"is_superuser"`
	ProfilePicture *string    `db:"profile_picture" json:"profile_picture"`
	LastLoginAt    *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Summary is the public view returned alongside session tokens.
type Summary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Profile is the owner's view of their own account.
type Profile struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	ProfilePicture *string `json:"profile_picture"`
	Role           Role    `json:"role"`
}

// Summary returns the public summary of u.
func (u *User) Summary() Summary {
	return Summary{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
	}
}

// Profile returns the profile view of u.
func (u *User) Profile() Profile {
	return Profile{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		ProfilePicture: u.ProfilePicture,
		Role:           u.Role,
	}
}

// CanLogin reports whether u may be issued session tokens.
func (u *User) CanLogin() bool {
	return u.IsVerified && u.IsActive
}
