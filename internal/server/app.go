// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"codeberg.org/oliverandrich/go-accounts/internal/handlers"
	"codeberg.org/oliverandrich/go-accounts/internal/metrics"
	appmw "codeberg.org/oliverandrich/go-accounts/internal/middleware"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
	"codeberg.org/oliverandrich/go-accounts/internal/services/auth"
	"codeberg.org/oliverandrich/go-accounts/internal/services/email"
	"codeberg.org/oliverandrich/go-accounts/internal/services/media"
	"codeberg.org/oliverandrich/go-accounts/internal/services/session"
	"codeberg.org/oliverandrich/go-accounts/internal/services/tokens"
	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vinovest/sqlx"
)

// app is the wired application: routes plus the background mail queue that
// has to be drained on shutdown.
type app struct {
	echo *echo.Echo
	mail *email.Queue
	repo *repository.Repository
}

func newApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, sender email.Sender) (*app, error) {
	repo := repository.New(db)
	secret := secretKey(cfg)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// Mail
	renderer, err := email.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}
	queue := email.NewQueue(sender, cfg.Mail.Workers, cfg.Mail.QueueSize, collector)
	notifier := email.NewNotifier(renderer, queue, cfg.Auth.LinkTTL)

	// Media
	store, err := media.New(ctx, &cfg.Media)
	if err != nil {
		_ = queue.Shutdown(ctx)
		return nil, fmt.Errorf("failed to set up media storage: %w", err)
	}

	// Auth
	links := tokens.New(repo, secret, tokens.WithTTL(cfg.Auth.LinkTTL))
	sessions := session.NewIssuer(session.Config{
		Secret:     secret,
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	})
	authSvc := auth.NewService(repo, links, sessions, notifier, &cfg.Auth,
		auth.WithEventRecorder(collector),
	)

	// Echo
	extractIP, err := ipExtractor(cfg.Server.TrustedProxies)
	if err != nil {
		_ = queue.Shutdown(ctx)
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = extractIP

	setupMiddleware(e, cfg, collector, authSvc)
	setupRoutes(e, cfg, handlers.New(authSvc, store), reg)

	return &app{echo: e, mail: queue, repo: repo}, nil
}

func setupRoutes(e *echo.Echo, cfg *config.Config, h *handlers.Handlers, reg *prometheus.Registry) {
	limit := appmw.RateLimit(cfg.RateLimit)

	// Operations
	e.GET("/health/", h.Health)
	e.GET("/metrics/", echo.WrapHandler(metrics.Handler(reg)))

	// Uploaded media
	if cfg.Media.Backend == "" || cfg.Media.Backend == "local" {
		e.Static(mediaPrefix, cfg.Media.Dir)
	}

	// Accounts
	e.POST("/register/", h.Register, limit)
	e.GET("/verify-email/:uid/:token/", h.VerifyEmail)
	e.POST("/login/", h.Login, limit)
	e.POST("/token/refresh/", h.Refresh)
	e.POST("/password-reset/request/", h.PasswordResetRequest, limit)
	e.POST("/password-reset/confirm/:uid/:token/", h.PasswordResetConfirm, limit)

	e.GET("/profile/", h.Profile, appmw.RequireAuth)
	e.PUT("/profile/", h.UpdateProfile, appmw.RequireAuth)
	e.PATCH("/profile/", h.PatchProfile, appmw.RequireAuth)
}

// secretKey returns the configured signing key. Without one a random key is
// generated, which invalidates all tokens and links on restart.
func secretKey(cfg *config.Config) []byte {
	if cfg.Auth.SecretKey != "" {
		return []byte(cfg.Auth.SecretKey)
	}
	slog.Warn("no secret key configured, using a random key for this process")
	return securecookie.GenerateRandomKey(32)
}

// mailSender picks SMTP when configured and logs mails otherwise.
func mailSender(cfg *config.Config) (email.Sender, error) {
	if !cfg.SMTP.Enabled() {
		slog.Warn("SMTP not configured, emails are logged instead of sent")
		return email.LogSender{}, nil
	}
	return email.NewSMTPSender(&cfg.SMTP)
}
