// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package i18n_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/go-accounts/internal/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestInit(t *testing.T) {
	require.NoError(t, i18n.Init())
	require.NoError(t, i18n.Init(), "second call is a no-op")
}

func TestT(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.English)

	assert.Equal(t, "Email verified successfully.", i18n.T(ctx, "msg_email_verified"))
}

func TestT_German(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.German)

	assert.Equal(t, "E-Mail-Adresse erfolgreich bestätigt.", i18n.T(ctx, "msg_email_verified"))
	assert.Equal(t, "de", i18n.GetLocale(ctx))
}

func TestT_UnknownKey(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.English)

	// Should return the key itself for unknown messages
	result := i18n.T(ctx, "unknown_key_that_does_not_exist")
	assert.Equal(t, "unknown_key_that_does_not_exist", result)
}

func TestT_NoLocaleContext(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "Verify your email", i18n.T(ctx, "email_verification_subject"))
	assert.Equal(t, "en", i18n.GetLocale(ctx))
}

func TestTData(t *testing.T) {
	require.NoError(t, i18n.Init())

	en := i18n.WithLocale(context.Background(), language.English)
	de := i18n.WithLocale(context.Background(), language.German)

	assert.Equal(t, "Hi Alice,", i18n.TData(en, "email_greeting", map[string]any{"Name": "Alice"}))
	assert.Equal(t, "Hallo Alice,", i18n.TData(de, "email_greeting", map[string]any{"Name": "Alice"}))
}

func TestTPlural(t *testing.T) {
	require.NoError(t, i18n.Init())

	ctx := i18n.WithLocale(context.Background(), language.English)

	assert.Equal(t, "This link expires in 1 hour.", i18n.TPlural(ctx, "email_link_expiry", 1))
	assert.Equal(t, "This link expires in 72 hours.", i18n.TPlural(ctx, "email_link_expiry", 72))
}

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		header   string
		expected language.Tag
	}{
		{"", language.English},
		{"en-US,en;q=0.9", language.English},
		{"de-DE,de;q=0.9,en;q=0.8", language.German},
		{"fr-FR", language.English},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.expected, i18n.MatchLanguage(tt.header))
		})
	}
}
