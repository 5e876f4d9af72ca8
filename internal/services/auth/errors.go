// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"errors"
	"sort"
	"strings"

	"codeberg.org/oliverandrich/go-accounts/internal/services/tokens"
	validation "github.com/go-ozzo/ozzo-validation"
)

var (
	ErrInvalidCredentials = errors.New("no active account found with the given credentials")
	ErrAccountNotVerified = errors.New("account not verified")
	ErrUnauthenticated    = errors.New("authentication credentials were not provided or are invalid")
	ErrDuplicateEmail     = errors.New("user with this email address already exists")
	ErrUserNotFound       = errors.New("user not found")

	// ErrInvalidLink is returned for bad, expired or already consumed links.
	ErrInvalidLink = tokens.ErrInvalidLink
)

// ValidationError carries per-field messages for bad input.
type ValidationError struct {
	Fields map[string][]string
	cause  error
}

// NewValidationError returns an empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

// Add appends a message for field.
func (e *ValidationError) Add(field, message string) {
	e.Fields[field] = append(e.Fields[field], message)
}

// Empty reports whether no messages were added.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the sentinel behind a field error, e.g. ErrDuplicateEmail.
func (e *ValidationError) Unwrap() error {
	return e.cause
}

// errOrNil returns e as an error, or nil when it holds no messages.
func (e *ValidationError) errOrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func duplicateEmailError() *ValidationError {
	verr := NewValidationError()
	verr.Add("email", "user with this email address already exists.")
	verr.cause = ErrDuplicateEmail
	return verr
}

// fromOzzo merges ozzo-validation field errors into verr. Non-field errors
// are returned unchanged.
func fromOzzo(verr *ValidationError, err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}
	for field, ferr := range errs {
		if ferr != nil {
			verr.Add(field, ferr.Error())
		}
	}
	return nil
}
