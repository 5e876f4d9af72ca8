// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"codeberg.org/oliverandrich/go-accounts/internal/database"
	"codeberg.org/oliverandrich/go-accounts/internal/i18n"
	"github.com/urfave/cli/v3"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	if plainHTTPOnPublicHost(cfg) {
		slog.Warn("serving plain HTTP on a non-local host, terminate TLS in front of it",
			"host", cfg.Server.Host,
		)
	}

	// i18n
	if err := i18n.Init(); err != nil {
		return fmt.Errorf("failed to init i18n: %w", err)
	}

	// Database, migrations are applied on open
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	sender, err := mailSender(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure mail: %w", err)
	}

	a, err := newApp(ctx, cfg, db, sender)
	if err != nil {
		return err
	}

	return startWithGracefulShutdown(a, cfg)
}

// plainHTTPOnPublicHost reports whether tokens would travel unencrypted
// beyond the local machine.
func plainHTTPOnPublicHost(cfg *config.Config) bool {
	return !cfg.TLS.Enabled() && !config.IsLocalhost(cfg.Server.Host)
}

func startWithGracefulShutdown(a *app, cfg *config.Config) error {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	errChan := make(chan error, 1)

	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL, "tls", cfg.TLS.Enabled())
		var err error
		if cfg.TLS.Enabled() {
			err = a.echo.StartTLS(addr, cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			err = a.echo.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
		slog.Info("shutting down server")
	case serveErr = <-errChan:
		slog.Error("server error", "error", serveErr)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	// Requests are done; flush what they queued.
	if err := a.mail.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to drain mail queue", "error", err)
	}

	slog.Info("server stopped")
	return serveErr
}
