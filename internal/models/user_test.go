// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models_test

import (
	"encoding/json"
	"testing"

	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Valid(t *testing.T) {
	assert.True(t, models.RoleStudent.Valid())
	assert.True(t, models.RoleInstructor.Valid())
	assert.False(t, models.Role("ADMIN").Valid())
	assert.False(t, models.Role("").Valid())
}

func TestUser_PasswordHashNeverSerialized(t *testing.T) {
	user := &models.User{ID: "u1", Email: "a@x.com", PasswordHash: "$2a$10$secret"}

	data, err := json.Marshal(user)

	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.NotContains(t, string(data), "password")
}

func TestUser_Summary(t *testing.T) {
	user := &models.User{ID: "u1", Email: "a@x.com", Name: "Ann", Role: models.RoleStudent, PasswordHash: "h"}

	summary := user.Summary()

	assert.Equal(t, models.Summary{ID: "u1", Email: "a@x.com", Name: "Ann", Role: models.RoleStudent}, summary)
}

func TestUser_Profile(t *testing.T) {
	pic := "profile_pictures/ann.png"
	user := &models.User{ID: "u1", Email: "a@x.com", Name: "Ann", Role: models.RoleInstructor, ProfilePicture: &pic}

	profile := user.Profile()

	assert.Equal(t, "u1", profile.ID)
	assert.Equal(t, "Ann", profile.Name)
	assert.Equal(t, "a@x.com", profile.Email)
	assert.Equal(t, models.RoleInstructor, profile.Role)
	require.NotNil(t, profile.ProfilePicture)
	assert.Equal(t, pic, *profile.ProfilePicture)
}

func TestUser_CanLogin(t *testing.T) {
	tests := []struct {
		name     string
		active   bool
		verified bool
		expected bool
	}{
		{"fresh registration", false, false, false},
		{"verified and active", true, true, true},
		{"active but unverified", true, false, false},
		{"verified but deactivated", false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &models.User{IsActive: tt.active, IsVerified: tt.verified}
			assert.Equal(t, tt.expected, user.CanLogin())
		})
	}
}
