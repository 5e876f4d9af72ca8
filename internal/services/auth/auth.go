// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements the account flows: registration, email
// verification, login, password reset and profile maintenance.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
	"codeberg.org/oliverandrich/go-accounts/internal/services/session"
	"codeberg.org/oliverandrich/go-accounts/internal/services/tokens"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// Notifier delivers account emails. Implementations must not block the
// caller; delivery failures are theirs to log.
type Notifier interface {
	NotifyVerification(ctx context.Context, user *models.User, link string)
	NotifyWelcome(ctx context.Context, user *models.User)
	NotifyPasswordReset(ctx context.Context, user *models.User, link string)
	NotifyPasswordChanged(ctx context.Context, user *models.User)
}

// EventRecorder counts flow outcomes.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthEvent(string, string) {}

type nopNotifier struct{}

func (nopNotifier) NotifyVerification(context.Context, *models.User, string)  {}
func (nopNotifier) NotifyWelcome(context.Context, *models.User)                {}
func (nopNotifier) NotifyPasswordReset(context.Context, *models.User, string) {}
func (nopNotifier) NotifyPasswordChanged(context.Context, *models.User)        {}

type Service struct {
	repo              *repository.Repository
	links             *tokens.Codec
	sessions          *session.Issuer
	notifier          Notifier
	events            EventRecorder
	passwordValidator *PasswordValidator
	frontendURL       string
	hashCost          int
	now               func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.hashCost = cost
	}
}

// WithClock replaces time.Now for last-login bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithEventRecorder reports flow outcomes to r.
func WithEventRecorder(r EventRecorder) Option {
	return func(s *Service) {
		s.events = r
	}
}

// NewService creates the account service. A nil notifier drops all
// notifications, which suits the management commands.
func NewService(
	repo *repository.Repository,
	links *tokens.Codec,
	sessions *session.Issuer,
	notifier Notifier,
	cfg *config.AuthConfig,
	opts ...Option,
) *Service {
	s := &Service{
		repo:              repo,
		links:             links,
		sessions:          sessions,
		notifier:          notifier,
		events:            nopRecorder{},
		passwordValidator: NewPasswordValidator(cfg.PasswordMinLength),
		frontendURL:       strings.TrimRight(cfg.FrontendURL, "/"),
		hashCost:          bcrypt.DefaultCost,
		now:               time.Now,
	}
	if notifier == nil {
		s.notifier = nopNotifier{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an inactive, unverified student account and mails a
// verification link. Mail delivery does not affect the result.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.normalize()

	verr := NewValidationError()
	if err := fromOzzo(verr, in.Validate()); err != nil {
		return nil, err
	}
	if in.Password != "" {
		for _, msg := range s.passwordValidator.Validate(in.Password, personalAttributes(in.Email, in.Name)...) {
			verr.Add("password", msg)
		}
	}
	if !verr.Empty() {
		s.events.RecordAuthEvent("register", "invalid")
		return nil, verr
	}

	// The unique constraint decides; this only saves a bcrypt round.
	exists, err := s.repo.UserExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if exists {
		s.events.RecordAuthEvent("register", "duplicate")
		return nil, duplicateEmailError()
	}

	passwordHash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: passwordHash,
		Role:         models.RoleStudent,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.events.RecordAuthEvent("register", "duplicate")
			return nil, duplicateEmailError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.InfoContext(ctx, "register_success", "user_id", user.ID, "email", user.Email)
	s.events.RecordAuthEvent("register", "success")

	if link, err := s.link(user, tokens.PurposeVerifyEmail, "verify-email"); err != nil {
		slog.ErrorContext(ctx, "verification_link_failed", "user_id", user.ID, "error", err)
	} else {
		s.notifier.NotifyVerification(ctx, user, link)
	}

	return user, nil
}

// VerifyEmail activates the account a verification link was issued for.
// Following a link for an account that is already verified succeeds without
// side effects.
func (s *Service) VerifyEmail(ctx context.Context, uid, token string) error {
	user, err := s.links.Verify(ctx, uid, token, tokens.PurposeVerifyEmail)
	if err != nil {
		if errors.Is(err, ErrInvalidLink) {
			s.events.RecordAuthEvent("verify_email", "invalid")
		}
		return err
	}

	if user.IsVerified {
		slog.InfoContext(ctx, "verify_email_repeated", "user_id", user.ID)
		s.events.RecordAuthEvent("verify_email", "repeated")
		return nil
	}

	changed, err := s.repo.MarkUserVerified(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to verify user: %w", err)
	}
	if !changed {
		// A concurrent request won the race and sent the welcome mail.
		return nil
	}

	user.IsActive = true
	user.IsVerified = true
	slog.InfoContext(ctx, "verify_email_success", "user_id", user.ID)
	s.events.RecordAuthEvent("verify_email", "success")
	s.notifier.NotifyWelcome(ctx, user)

	return nil
}

// LoginResult is returned on successful login.
type LoginResult struct {
	session.Pair
	User models.Summary `json:"user"`
}

// Login checks credentials and issues a session token pair. Unknown emails
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	verr := NewValidationError()
	if err := fromOzzo(verr, in.Validate()); err != nil {
		return nil, err
	}
	if !verr.Empty() {
		return nil, verr
	}

	email := NormalizeEmail(in.Email)
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(in.Password))
			slog.WarnContext(ctx, "login_failed", "email", email, "reason", "user_not_found")
			s.events.RecordAuthEvent("login", "invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		slog.WarnContext(ctx, "login_failed", "email", email, "reason", "invalid_password")
		s.events.RecordAuthEvent("login", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	if !user.IsVerified {
		slog.WarnContext(ctx, "login_failed", "user_id", user.ID, "reason", "not_verified")
		s.events.RecordAuthEvent("login", "not_verified")
		return nil, ErrAccountNotVerified
	}
	if !user.IsActive {
		slog.WarnContext(ctx, "login_failed", "user_id", user.ID, "reason", "inactive")
		s.events.RecordAuthEvent("login", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	user.LastLoginAt = &now

	pair, err := s.sessions.IssuePair(user)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "login_success", "user_id", user.ID)
	s.events.RecordAuthEvent("login", "success")

	return &LoginResult{Pair: pair, User: user.Summary()}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.sessions.Parse(refreshToken, session.TypeRefresh)
	if err != nil {
		s.events.RecordAuthEvent("refresh", "invalid")
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	user, err := s.loginableUser(ctx, claims.Subject)
	if err != nil {
		s.events.RecordAuthEvent("refresh", "invalid")
		return "", err
	}

	access, err := s.sessions.IssueAccess(user)
	if err != nil {
		return "", err
	}
	s.events.RecordAuthEvent("refresh", "success")
	return access, nil
}

// Authenticate resolves a bearer access token to its user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.sessions.Parse(accessToken, session.TypeAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return s.loginableUser(ctx, claims.Subject)
}

func (s *Service) loginableUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.CanLogin() {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// ChangePassword sets a new password without the old one. It backs the
// changepassword command and invalidates outstanding reset links.
func (s *Service) ChangePassword(ctx context.Context, email, newPassword string) error {
	user, err := s.repo.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.setPassword(ctx, user, newPassword); err != nil {
		return err
	}

	slog.InfoContext(ctx, "password_changed", "user_id", user.ID)
	return nil
}

// CreateSuperuser creates an active, verified staff account.
func (s *Service) CreateSuperuser(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.normalize()

	verr := NewValidationError()
	if err := fromOzzo(verr, in.Validate()); err != nil {
		return nil, err
	}
	if in.Password != "" {
		for _, msg := range s.passwordValidator.Validate(in.Password, personalAttributes(in.Email, in.Name)...) {
			verr.Add("password", msg)
		}
	}
	if !verr.Empty() {
		return nil, verr
	}

	passwordHash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: passwordHash,
		Role:         models.RoleStudent,
		IsActive:     true,
		IsVerified:   true,
		IsStaff:      true,
		IsSuperuser:  true,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, duplicateEmailError()
		}
		return nil, fmt.Errorf("failed to create superuser: %w", err)
	}

	slog.InfoContext(ctx, "superuser_created", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// SetActive enables or disables the account with email. A disabled account
// keeps its data but cannot log in, and its outstanding tokens stop working.
func (s *Service) SetActive(ctx context.Context, email string, active bool) error {
	user, err := s.repo.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.repo.SetUserActive(ctx, user.ID, active); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	slog.InfoContext(ctx, "account_active_changed", "user_id", user.ID, "active", active)
	return nil
}

// SuperuserCount returns the number of superuser accounts.
func (s *Service) SuperuserCount(ctx context.Context) (int64, error) {
	n, err := s.repo.CountSuperusers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count superusers: %w", err)
	}
	return n, nil
}

func (s *Service) setPassword(ctx context.Context, user *models.User, password string) error {
	verr := NewValidationError()
	if password == "" {
		verr.Add("password", "This field is required.")
	} else {
		for _, msg := range s.passwordValidator.Validate(password, personalAttributes(user.Email, user.Name)...) {
			verr.Add("password", msg)
		}
	}
	if !verr.Empty() {
		return verr
	}

	passwordHash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateUserPassword(ctx, user.ID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	user.PasswordHash = passwordHash
	return nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// link builds the frontend URL for an emailed link, e.g.
// {frontend}/verify-email/{uid}/{token}/.
func (s *Service) link(user *models.User, purpose tokens.Purpose, route string) (string, error) {
	l, err := s.links.Issue(user, purpose)
	if err != nil {
		return "", err
	}
	return s.frontendURL + "/" + route + "/" + l.Path() + "/", nil
}
