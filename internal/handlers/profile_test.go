// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeberg.org/oliverandrich/go-accounts/internal/appcontext"
	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"codeberg.org/oliverandrich/go-accounts/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func asUser(c echo.Context, user *models.User) echo.Context {
	ac := appcontext.From(c)
	ac.SetUser(user)
	return ac
}

func TestProfile(t *testing.T) {
	env := newEnv(t)
	user := testutil.NewTestUser(t, env.repo, "alice@example.com")

	c, rec := env.request(http.MethodGet, "/profile/", "")
	require.NoError(t, env.h.Profile(asUser(c, user)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"id": "`+user.ID+`",
		"name": "Test User",
		"email": "alice@example.com",
		"profile_picture": null,
		"role": "STUDENT"
	}`, rec.Body.String())
}

func TestProfile_Anonymous(t *testing.T) {
	env := newEnv(t)

	c, rec := env.request(http.MethodGet, "/profile/", "")
	require.NoError(t, env.h.Profile(c))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, decode(t, rec), "detail")
}

func TestUpdateProfile_PutRequiresName(t *testing.T) {
	env := newEnv(t)
	user := testutil.NewTestUser(t, env.repo, "alice@example.com")

	c, rec := env.request(http.MethodPut, "/profile/", `{}`)
	require.NoError(t, env.h.UpdateProfile(asUser(c, user)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"name":["This field is required."]}`, rec.Body.String())
}

func TestUpdateProfile_IgnoresReadOnlyFields(t *testing.T) {
	env := newEnv(t)
	user := testutil.NewTestUser(t, env.repo, "alice@example.com")

	c, rec := env.request(http.MethodPut, "/profile/",
		`{"name":"Alice Liddell","email":"evil@example.com","role":"INSTRUCTOR"}`)
	require.NoError(t, env.h.UpdateProfile(asUser(c, user)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Alice Liddell", body["name"])
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, "STUDENT", body["role"])

	stored, err := env.repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", stored.Email)
	assert.Equal(t, models.RoleStudent, stored.Role)
}

func TestPatchProfile(t *testing.T) {
	env := newEnv(t)
	user := testutil.NewTestUser(t, env.repo, "alice@example.com")

	t.Run("empty patch keeps everything", func(t *testing.T) {
		c, rec := env.request(http.MethodPatch, "/profile/", `{}`)
		require.NoError(t, env.h.PatchProfile(asUser(c, user)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Test User", decode(t, rec)["name"])
	})

	t.Run("blank name rejected", func(t *testing.T) {
		c, rec := env.request(http.MethodPatch, "/profile/", `{"name":"  "}`)
		require.NoError(t, env.h.PatchProfile(asUser(c, user)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode(t, rec), "name")
	})

	t.Run("non-string name rejected", func(t *testing.T) {
		c, rec := env.request(http.MethodPatch, "/profile/", `{"name":42}`)
		require.NoError(t, env.h.PatchProfile(asUser(c, user)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("string picture rejected", func(t *testing.T) {
		c, rec := env.request(http.MethodPatch, "/profile/", `{"profile_picture":"http://example.com/a.png"}`)
		require.NoError(t, env.h.PatchProfile(asUser(c, user)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode(t, rec), "profile_picture")
	})

	t.Run("malformed json", func(t *testing.T) {
		c, rec := env.request(http.MethodPatch, "/profile/", `{"name":`)
		require.NoError(t, env.h.PatchProfile(asUser(c, user)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode(t, rec), "detail")
	})
}

func multipartRequest(t *testing.T, env *env, method, name string, file []byte) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if name != "" {
		require.NoError(t, w.WriteField("name", name))
	}
	if file != nil {
		part, err := w.CreateFormFile("profile_picture", "avatar.bin")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return testutil.NewEchoContextWithHeaders(env.e, method, "/profile/", &buf, map[string]string{
		echo.HeaderContentType: w.FormDataContentType(),
	})
}

func TestPatchProfile_UploadPicture(t *testing.T) {
	env := newEnv(t)
	user := testutil.NewTestUser(t, env.repo, "alice@example.com")

	c, rec := multipartRequest(t, env, http.MethodPatch, "", pngHeader)
	require.NoError(t, env.h.PatchProfile(asUser(c, user)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	picture, ok := decode(t, rec)["profile_picture"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(picture, "http://localhost:8080/media/profile_pictures/"))
	assert.True(t, strings.HasSuffix(picture, ".png"))

	stored := filepath.Join(env.media.Root(), strings.TrimPrefix(picture, "http://localhost:8080/media/"))
	data, err := os.ReadFile(stored)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	t.Run("null clears the picture", func(t *testing.T) {
		c, rec := env.request(http.MethodPatch, "/profile/", `{"profile_picture":null}`)
		require.NoError(t, env.h.PatchProfile(asUser(c, user)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, decode(t, rec)["profile_picture"])
	})
}

func TestUpdateProfile_MultipartWithName(t *testing.T) {
	env := newEnv(t)
	user := testutil.NewTestUser(t, env.repo, "alice@example.com")

	c, rec := multipartRequest(t, env, http.MethodPut, "Alice", pngHeader)
	require.NoError(t, env.h.UpdateProfile(asUser(c, user)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Alice", body["name"])
	assert.NotNil(t, body["profile_picture"])
}

func TestUpdateProfile_MultipartMissingNameStoresNothing(t *testing.T) {
	env := newEnv(t)
	user := testutil.NewTestUser(t, env.repo, "alice@example.com")

	c, rec := multipartRequest(t, env, http.MethodPut, "", pngHeader)
	require.NoError(t, env.h.UpdateProfile(asUser(c, user)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, err := os.Stat(filepath.Join(env.media.Root(), "profile_pictures"))
	assert.True(t, os.IsNotExist(err))
}

func TestPatchProfile_RejectsNonImage(t *testing.T) {
	env := newEnv(t)
	user := testutil.NewTestUser(t, env.repo, "alice@example.com")

	c, rec := multipartRequest(t, env, http.MethodPatch, "", []byte("just some text"))
	require.NoError(t, env.h.PatchProfile(asUser(c, user)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec), "profile_picture")
}

func TestPatchProfile_FailedUpdateRemovesUpload(t *testing.T) {
	env := newEnv(t)
	gone := &models.User{ID: "0b9a6c1e-5f0d-4c59-9a43-4d2b8f1c7e21", Email: "gone@example.com", IsActive: true}

	c, rec := multipartRequest(t, env, http.MethodPatch, "", pngHeader)
	require.NoError(t, env.h.PatchProfile(asUser(c, gone)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	entries, err := os.ReadDir(filepath.Join(env.media.Root(), "profile_pictures"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
