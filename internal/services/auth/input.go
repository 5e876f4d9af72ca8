// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const maxNameLength = 255

var (
	required   = validation.Required.Error("This field is required.")
	validEmail = is.Email.Error("Enter a valid email address.")
	nameLength = validation.RuneLength(0, maxNameLength).Error("Ensure this field has no more than 255 characters.")
)

// NormalizeEmail returns the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (in *RegisterInput) normalize() {
	in.Email = NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
}

// Validate checks the shape of the input. The password policy is applied
// separately.
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, required, validEmail),
		validation.Field(&in.Name, required, nameLength),
		validation.Field(&in.Password, required),
	)
}

// LoginInput is the payload of a login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks that both fields are present.
func (in LoginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, required),
		validation.Field(&in.Password, required),
	)
}

// PasswordResetRequestInput is the payload of a password reset request.
type PasswordResetRequestInput struct {
	Email string `json:"email"`
}

// Validate requires a syntactically valid email.
func (in PasswordResetRequestInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, required, validEmail),
	)
}

// ProfileUpdate describes a change to the caller's own profile. Fields that
// are nil are left untouched; read-only fields have no place here.
type ProfileUpdate struct {
	Name *string
	// SetPicture marks ProfilePicture as present. A nil ProfilePicture then
	// clears the stored picture.
	SetPicture     bool
	ProfilePicture *string
	// Partial is true for PATCH semantics. A full update requires Name.
	Partial bool
}

// Validate checks the update.
func (u ProfileUpdate) Validate() error {
	verr := NewValidationError()
	switch {
	case u.Name == nil && !u.Partial:
		verr.Add("name", "This field is required.")
	case u.Name != nil && strings.TrimSpace(*u.Name) == "":
		verr.Add("name", "This field may not be blank.")
	case u.Name != nil && len([]rune(strings.TrimSpace(*u.Name))) > maxNameLength:
		verr.Add("name", "Ensure this field has no more than 255 characters.")
	}
	return verr.errOrNil()
}
