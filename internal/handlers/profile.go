// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/go-accounts/internal/appcontext"
	"codeberg.org/oliverandrich/go-accounts/internal/services/auth"
	"codeberg.org/oliverandrich/go-accounts/internal/services/media"
	"github.com/labstack/echo/v4"
)

const profilePictureField = "profile_picture"

// Profile returns the caller's profile.
func (h *Handlers) Profile(c echo.Context) error {
	user := appcontext.From(c).GetUser()
	if user == nil {
		return respondError(c, auth.ErrUnauthenticated)
	}

	profile, err := h.auth.Profile(c.Request().Context(), user.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

// UpdateProfile replaces the writable profile fields (PUT).
func (h *Handlers) UpdateProfile(c echo.Context) error {
	return h.updateProfile(c, false)
}

// PatchProfile changes only the writable profile fields present in the
// request (PATCH).
func (h *Handlers) PatchProfile(c echo.Context) error {
	return h.updateProfile(c, true)
}

func (h *Handlers) updateProfile(c echo.Context, partial bool) error {
	user := appcontext.From(c).GetUser()
	if user == nil {
		return respondError(c, auth.ErrUnauthenticated)
	}

	var (
		upd auth.ProfileUpdate
		err error
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		upd, err = h.multipartProfileUpdate(c, partial)
	} else {
		upd, err = jsonProfileUpdate(c, partial)
	}
	if err != nil {
		return respondError(c, err)
	}

	ctx := c.Request().Context()
	profile, err := h.auth.UpdateProfile(ctx, user.ID, upd)
	if err != nil {
		if upd.ProfilePicture != nil {
			h.discardUpload(ctx, *upd.ProfilePicture)
		}
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

// discardUpload removes a picture stored for an update that did not go through.
func (h *Handlers) discardUpload(ctx context.Context, ref string) {
	if err := h.media.Delete(ctx, ref); err != nil {
		slog.WarnContext(ctx, "discard_upload_failed", "ref", ref, "error", err)
	}
}

// jsonProfileUpdate reads name and profile_picture from a JSON body. Other
// keys, email and role among them, are ignored. A JSON null picture clears
// the stored one.
func jsonProfileUpdate(c echo.Context, partial bool) (auth.ProfileUpdate, error) {
	upd := auth.ProfileUpdate{Partial: partial}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return upd, errMalformedRequest
	}

	verr := auth.NewValidationError()
	if raw, ok := body["name"]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			verr.Add("name", "Not a valid string.")
		} else {
			upd.Name = &name
		}
	}
	if raw, ok := body[profilePictureField]; ok {
		if string(raw) == "null" {
			upd.SetPicture = true
		} else {
			verr.Add(profilePictureField, "The submitted data was not a file. Check the encoding type on the form.")
		}
	}
	if !verr.Empty() {
		return upd, verr
	}
	return upd, nil
}

// multipartProfileUpdate reads name and an uploaded profile picture from a
// multipart form. The picture is stored only once the rest of the update
// is valid.
func (h *Handlers) multipartProfileUpdate(c echo.Context, partial bool) (auth.ProfileUpdate, error) {
	upd := auth.ProfileUpdate{Partial: partial}

	form, err := c.MultipartForm()
	if err != nil {
		return upd, errMalformedRequest
	}

	if names, ok := form.Value["name"]; ok && len(names) > 0 {
		upd.Name = &names[0]
	}

	files := form.File[profilePictureField]
	if len(files) == 0 {
		return upd, nil
	}
	if err := upd.Validate(); err != nil {
		return upd, err
	}

	f, err := files[0].Open()
	if err != nil {
		return upd, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	ref, err := media.SaveProfilePicture(c.Request().Context(), h.media, f)
	if err != nil {
		return upd, err
	}
	upd.SetPicture = true
	upd.ProfilePicture = &ref
	return upd, nil
}
