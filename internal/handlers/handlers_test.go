// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codeberg.org/oliverandrich/go-accounts/internal/handlers"
	"codeberg.org/oliverandrich/go-accounts/internal/i18n"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
	"codeberg.org/oliverandrich/go-accounts/internal/services/media"
	"codeberg.org/oliverandrich/go-accounts/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = i18n.Init()
}

type env struct {
	e        *echo.Echo
	h        *handlers.Handlers
	repo     *repository.Repository
	notifier *testutil.Notifier
	clock    *testutil.Clock
	media    *media.LocalStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	clk := testutil.NewClock()
	notifier := &testutil.Notifier{}
	svc := testutil.NewAuthService(t, repo, notifier, clk.Now)

	store, err := media.NewLocalStore(t.TempDir(), "http://localhost:8080/media")
	require.NoError(t, err)

	return &env{
		e:        echo.New(),
		h:        handlers.New(svc, store),
		repo:     repo,
		notifier: notifier,
		clock:    clk,
		media:    store,
	}
}

func (env *env) request(method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	return testutil.NewEchoContext(env.e, method, path, strings.NewReader(body))
}

func withParams(c echo.Context, uid, token string) echo.Context {
	c.SetParamNames("uid", "token")
	c.SetParamValues(uid, token)
	return c
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	h := handlers.New(nil, nil)

	c, rec := testutil.NewEchoContext(echo.New(), http.MethodGet, "/health", nil)

	require.NoError(t, h.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
