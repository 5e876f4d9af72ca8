// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package media stores uploaded profile pictures.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for uploads that are not a known image format.
var ErrUnsupportedType = errors.New("upload a valid image")

// ProfilePicturePrefix is the key prefix of profile pictures.
const ProfilePicturePrefix = "profile_pictures/"

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store persists an object under key and returns its public reference.
// Delete removes the object behind a reference returned by Save.
type Store interface {
	Save(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}

// New returns the store selected by cfg.Backend.
func New(ctx context.Context, cfg *config.MediaConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.Dir, cfg.BaseURL)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown media backend %q", cfg.Backend)
	}
}

// SaveProfilePicture sniffs r, rejects anything but images and stores it
// under a fresh key. It returns the reference to keep on the user.
func SaveProfilePicture(ctx context.Context, store Store, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}

	contentType := http.DetectContentType(data)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}

	return store.Save(ctx, ProfilePicturePrefix+uuid.NewString()+ext, contentType, data)
}

func publicURL(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + "/" + key
}

// keyFromRef reverses publicURL.
func keyFromRef(baseURL, ref string) (string, error) {
	key, ok := strings.CutPrefix(ref, publicURL(baseURL, ""))
	if !ok || key == "" {
		return "", fmt.Errorf("media reference %q does not belong to this store", ref)
	}
	return key, nil
}
