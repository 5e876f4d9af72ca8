// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	TLS       TLSConfig
	Auth      AuthConfig
	SMTP      SMTPConfig
	Mail      MailConfig
	Media     MediaConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
	// TrustedProxies lists the CIDR ranges whose X-Forwarded-For header is
	// believed. Without any, the client IP is the TCP peer.
	TrustedProxies []string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

// TLSConfig enables HTTPS when both files are set. Otherwise the server speaks
// plain HTTP and is expected to sit behind a TLS-terminating proxy.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// Enabled reports whether a certificate and key are configured.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

type AuthConfig struct { //nolint:govet // fieldalignment not critical for config structs
	SecretKey         string        // signs session tokens and emailed links
	Issuer            string        // JWT "iss" claim
	AccessTokenTTL    time.Duration // lifetime of access tokens
	RefreshTokenTTL   time.Duration // lifetime of refresh tokens
	LinkTTL           time.Duration // lifetime of verification and reset links
	FrontendURL       string        // base URL used in emailed links
	PasswordMinLength int
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// Enabled reports whether outgoing mail is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type MailConfig struct {
	Workers   int
	QueueSize int
}

type MediaConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Backend     string // local, s3
	Dir         string // local backend root directory
	BaseURL     string // public URL prefix for stored objects
	S3Bucket    string
	S3Region    string
	S3Endpoint  string // optional, for S3-compatible stores
	S3AccessKey string
	S3SecretKey string
}

type RateLimitConfig struct {
	Rate  float64 // requests per second per client
	Burst int
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:           cmd.String("host"),
			Port:           int(cmd.Int("port")),
			BaseURL:        cmd.String("base-url"),
			MaxBodySize:    int(cmd.Int("max-body-size")),
			TrustedProxies: cmd.StringSlice("trusted-proxies"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Auth: AuthConfig{
			SecretKey:         cmd.String("secret-key"),
			Issuer:            cmd.String("token-issuer"),
			AccessTokenTTL:    cmd.Duration("access-token-ttl"),
			RefreshTokenTTL:   cmd.Duration("refresh-token-ttl"),
			LinkTTL:           cmd.Duration("link-ttl"),
			FrontendURL:       cmd.String("frontend-url"),
			PasswordMinLength: int(cmd.Int("password-min-length")),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Mail: MailConfig{
			Workers:   int(cmd.Int("mail-workers")),
			QueueSize: int(cmd.Int("mail-queue-size")),
		},
		Media: MediaConfig{
			Backend:     cmd.String("media-backend"),
			Dir:         cmd.String("media-dir"),
			BaseURL:     cmd.String("media-base-url"),
			S3Bucket:    cmd.String("media-s3-bucket"),
			S3Region:    cmd.String("media-s3-region"),
			S3Endpoint:  cmd.String("media-s3-endpoint"),
			S3AccessKey: cmd.String("media-s3-access-key"),
			S3SecretKey: cmd.String("media-s3-secret-key"),
		},
		RateLimit: RateLimitConfig{
			Rate:  cmd.Float("ratelimit-rate"),
			Burst: int(cmd.Int("ratelimit-burst")),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	applyDefaults(cfg)

	return cfg
}

// applyDefaults fills values derived from other settings.
func applyDefaults(cfg *Config) {
	if cfg.Auth.FrontendURL == "" {
		cfg.Auth.FrontendURL = cfg.Server.BaseURL
	}
	cfg.Auth.FrontendURL = strings.TrimSuffix(cfg.Auth.FrontendURL, "/")

	if cfg.Media.BaseURL == "" {
		cfg.Media.BaseURL = strings.TrimSuffix(cfg.Server.BaseURL, "/") + "/media"
	}
	if cfg.Mail.Workers <= 0 {
		cfg.Mail.Workers = 1
	}
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port

	scheme := "http"
	if cfg.TLS.Enabled() {
		scheme = "https"
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func source(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: source("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: source("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: source("BASE_URL", "server.base_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   5,
			Usage:   "Maximum request body size in MB",
			Sources: source("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringSliceFlag{
			Name:    "trusted-proxies",
			Usage:   "CIDR ranges of reverse proxies allowed to set X-Forwarded-For",
			Sources: source("TRUSTED_PROXIES", "server.trusted_proxies"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: source("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: source("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN (SQLite path or postgres:// URL)",
			Sources: source("DATABASE_DSN", "database.dsn"),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file",
			Sources: source("TLS_CERT_FILE", "tls.cert_file"),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file",
			Sources: source("TLS_KEY_FILE", "tls.key_file"),
		},
		// Auth flags
		&cli.StringFlag{
			Name:    "secret-key",
			Usage:   "Secret for signing tokens (auto-generated if empty, tokens then die with the process)",
			Sources: source("SECRET_KEY", "auth.secret_key"),
		},
		&cli.StringFlag{
			Name:    "token-issuer",
			Value:   "go-accounts",
			Usage:   "Issuer claim for access and refresh tokens",
			Sources: source("TOKEN_ISSUER", "auth.issuer"),
		},
		&cli.DurationFlag{
			Name:    "access-token-ttl",
			Value:   5 * time.Minute,
			Usage:   "Access token lifetime",
			Sources: source("ACCESS_TOKEN_TTL", "auth.access_token_ttl"),
		},
		&cli.DurationFlag{
			Name:    "refresh-token-ttl",
			Value:   24 * time.Hour,
			Usage:   "Refresh token lifetime",
			Sources: source("REFRESH_TOKEN_TTL", "auth.refresh_token_ttl"),
		},
		&cli.DurationFlag{
			Name:    "link-ttl",
			Value:   72 * time.Hour,
			Usage:   "Lifetime of email verification and password reset links",
			Sources: source("LINK_TTL", "auth.link_ttl"),
		},
		&cli.StringFlag{
			Name:    "frontend-url",
			Usage:   "Frontend base URL used in emailed links (defaults to base_url)",
			Sources: source("FRONTEND_URL", "auth.frontend_url"),
		},
		&cli.IntFlag{
			Name:    "password-min-length",
			Value:   6,
			Usage:   "Minimum password length",
			Sources: source("PASSWORD_MIN_LENGTH", "auth.password_min_length"),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host (mail is logged and discarded if empty)",
			Sources: source("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: source("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: source("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: source("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "noreply@localhost",
			Usage:   "Sender address",
			Sources: source("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Sender display name",
			Sources: source("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: source("SMTP_TLS", "smtp.tls"),
		},
		&cli.IntFlag{
			Name:    "mail-workers",
			Value:   2,
			Usage:   "Number of background mail senders",
			Sources: source("MAIL_WORKERS", "mail.workers"),
		},
		&cli.IntFlag{
			Name:    "mail-queue-size",
			Value:   100,
			Usage:   "Capacity of the outgoing mail queue",
			Sources: source("MAIL_QUEUE_SIZE", "mail.queue_size"),
		},
		// Media flags
		&cli.StringFlag{
			Name:    "media-backend",
			Value:   "local",
			Usage:   "Media storage backend (local, s3)",
			Sources: source("MEDIA_BACKEND", "media.backend"),
		},
		&cli.StringFlag{
			Name:    "media-dir",
			Value:   "./data/media",
			Usage:   "Directory for the local media backend",
			Sources: source("MEDIA_DIR", "media.dir"),
		},
		&cli.StringFlag{
			Name:    "media-base-url",
			Usage:   "Public URL prefix for stored media (defaults to base_url/media)",
			Sources: source("MEDIA_BASE_URL", "media.base_url"),
		},
		&cli.StringFlag{
			Name:    "media-s3-bucket",
			Usage:   "S3 bucket for media",
			Sources: source("MEDIA_S3_BUCKET", "media.s3_bucket"),
		},
		&cli.StringFlag{
			Name:    "media-s3-region",
			Value:   "us-east-1",
			Usage:   "S3 region",
			Sources: source("MEDIA_S3_REGION", "media.s3_region"),
		},
		&cli.StringFlag{
			Name:    "media-s3-endpoint",
			Usage:   "Custom S3 endpoint (MinIO and friends)",
			Sources: source("MEDIA_S3_ENDPOINT", "media.s3_endpoint"),
		},
		&cli.StringFlag{
			Name:    "media-s3-access-key",
			Usage:   "S3 access key (falls back to the default AWS credential chain)",
			Sources: source("MEDIA_S3_ACCESS_KEY", "media.s3_access_key"),
		},
		&cli.StringFlag{
			Name:    "media-s3-secret-key",
			Usage:   "S3 secret key",
			Sources: source("MEDIA_S3_SECRET_KEY", "media.s3_secret_key"),
		},
		// Rate limit flags
		&cli.FloatFlag{
			Name:    "ratelimit-rate",
			Value:   1,
			Usage:   "Requests per second per client on auth endpoints (0 disables)",
			Sources: source("RATELIMIT_RATE", "ratelimit.rate"),
		},
		&cli.IntFlag{
			Name:    "ratelimit-burst",
			Value:   10,
			Usage:   "Burst size for auth endpoint rate limiting",
			Sources: source("RATELIMIT_BURST", "ratelimit.burst"),
		},
	}
}
