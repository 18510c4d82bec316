// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package accounts implements auth.Backend over the PostgreSQL account
// store: bcrypt passwords, TOTP second factor and mailed single-use tokens.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/store"
)

// Token lifetimes.
const (
	DefaultResetTTL  = time.Hour
	DefaultVerifyTTL = 24 * time.Hour
)

// AccountStore is the account persistence Backend needs. *store.AccountStore
// satisfies it.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	Create(ctx context.Context, email, password, displayName string, role models.Role) (*models.Account, error)
	CheckPassword(a *models.Account, password string) bool
	UpdatePassword(ctx context.Context, id uuid.UUID, password string) error
	EnableTwoFactor(ctx context.Context, id uuid.UUID, secret *string, phone string) error
	DisableTwoFactor(ctx context.Context, id uuid.UUID) error
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error
}

// TokenStore is the single-use token persistence Backend needs.
// *store.TokenStore satisfies it.
type TokenStore interface {
	Create(ctx context.Context, accountID uuid.UUID, purpose models.TokenPurpose, ttl time.Duration) (string, error)
	Consume(ctx context.Context, token string, purpose models.TokenPurpose, owner uuid.NullUUID, apply func(ctx context.Context, accountID uuid.UUID) error) (uuid.UUID, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// Config holds the Backend settings.
type Config struct {
	// Issuer names the storefront in authenticator apps.
	Issuer string

	// BaseURL is the public storefront URL mailed links point to.
	BaseURL string

	ResetTTL  time.Duration
	VerifyTTL time.Duration
}

// Backend is an auth.Backend over the database.
type Backend struct {
	accounts AccountStore
	tokens   TokenStore
	mailer   Mailer
	cfg      Config
}

var _ auth.Backend = (*Backend)(nil)

// NewBackend creates a Backend. Zero TTLs use the defaults.
func NewBackend(accounts AccountStore, tokens TokenStore, mailer Mailer, cfg Config) *Backend {
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	if cfg.VerifyTTL <= 0 {
		cfg.VerifyTTL = DefaultVerifyTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "Storefront"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Backend{accounts: accounts, tokens: tokens, mailer: mailer, cfg: cfg}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// sessionFor maps an account row to the identity the session store keeps.
func sessionFor(a *models.Account) *auth.Session {
	return &auth.Session{
		UserID:           a.ID.String(),
		DisplayName:      a.DisplayName,
		Email:            a.Email,
		Role:             auth.Role(a.Role),
		EmailVerified:    a.EmailVerified,
		TwoFactorEnabled: a.TwoFactorEnabled,
		PhoneNumber:      a.Phone(),
	}
}

// account loads the account of a session user id. An unknown or malformed
// id means the session no longer matches a row.
func (b *Backend) account(ctx context.Context, op, userID string) (*models.Account, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, auth.ErrNoActiveSession)
	}
	a, err := b.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if a == nil {
		return nil, fmt.Errorf("%s: %w", op, auth.ErrNoActiveSession)
	}
	return a, nil
}

// Authenticate checks email/password against the stored bcrypt hash.
func (b *Backend) Authenticate(ctx context.Context, email, password string) (*auth.Session, error) {
	a, err := b.accounts.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if a == nil || !b.accounts.CheckPassword(a, password) {
		return nil, auth.ErrInvalidCredentials
	}
	return sessionFor(a), nil
}

// VerifyTwoFactor validates a TOTP code. Accounts without an enrolled
// secret accept no code.
func (b *Backend) VerifyTwoFactor(ctx context.Context, userID, code string) error {
	a, err := b.account(ctx, "verify two-factor", userID)
	if errors.Is(err, auth.ErrNoActiveSession) {
		return auth.ErrInvalidTwoFactorCode
	}
	if err != nil {
		return err
	}
	if !a.HasTOTP() || !totp.Validate(strings.TrimSpace(code), *a.TOTPSecret) {
		return auth.ErrInvalidTwoFactorCode
	}
	return nil
}

// Register creates a customer account and mails a verification link.
func (b *Backend) Register(ctx context.Context, name, email, password string) (*auth.Session, error) {
	if err := auth.CheckPasswordStrength(password); err != nil {
		return nil, err
	}
	a, err := b.accounts.Create(ctx, normalizeEmail(email), password, strings.TrimSpace(name), models.RoleUser)
	if errors.Is(err, store.ErrDuplicateEmail) {
		return nil, auth.ErrAccountExists
	}
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	slog.Info("account registered", "account_id", a.ID)

	if err := b.sendVerification(ctx, a.ID, a.Email); err != nil {
		slog.Warn("verification email not sent", "account_id", a.ID, "error", err)
	}
	return sessionFor(a), nil
}

// SocialLogin is not available without a configured identity provider.
func (b *Backend) SocialLogin(ctx context.Context, provider auth.Provider) (*auth.Session, error) {
	return nil, fmt.Errorf("%w: %s is not configured", auth.ErrUnsupportedProvider, provider)
}

// RequestPasswordReset mails a reset link. Unknown addresses succeed
// silently so the endpoint does not reveal which accounts exist.
func (b *Backend) RequestPasswordReset(ctx context.Context, email string) error {
	a, err := b.accounts.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("request password reset: %w", err)
	}
	if a == nil {
		slog.Debug("password reset for unknown email")
		return nil
	}

	token, err := b.tokens.Create(ctx, a.ID, models.PurposePasswordReset, b.cfg.ResetTTL)
	if err != nil {
		return fmt.Errorf("request password reset: %w", err)
	}
	return b.mailer.Send(ctx, Message{
		To:      a.Email,
		Subject: "Reset your password",
		Body:    "Use this link to choose a new password: " + b.link("/reset-password", token),
	})
}

// ResetPassword redeems a reset token and sets the new password.
func (b *Backend) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := auth.CheckPasswordStrength(newPassword); err != nil {
		return err
	}
	id, err := b.tokens.Consume(ctx, token, models.PurposePasswordReset, uuid.NullUUID{},
		func(ctx context.Context, id uuid.UUID) error {
			return b.accounts.UpdatePassword(ctx, id, newPassword)
		})
	if errors.Is(err, store.ErrTokenInvalid) {
		return auth.ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	slog.Info("password reset", "account_id", id)
	return nil
}

// EnableTwoFactor enrolls a new TOTP secret and turns the factor on. The
// returned Enrollment must be shown to the user once.
func (b *Backend) EnableTwoFactor(ctx context.Context, userID, phoneNumber string) (*auth.Enrollment, error) {
	a, err := b.account(ctx, "enable two-factor", userID)
	if err != nil {
		return nil, err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      b.cfg.Issuer,
		AccountName: a.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("enable two-factor: %w", err)
	}
	secret := key.Secret()
	if err := b.accounts.EnableTwoFactor(ctx, a.ID, &secret, phoneNumber); err != nil {
		return nil, fmt.Errorf("enable two-factor: %w", err)
	}
	slog.Info("two-factor enabled", "account_id", a.ID)
	return &auth.Enrollment{Secret: secret, URL: key.URL()}, nil
}

// DisableTwoFactor turns the factor off and forgets the secret.
func (b *Backend) DisableTwoFactor(ctx context.Context, userID string) error {
	a, err := b.account(ctx, "disable two-factor", userID)
	if err != nil {
		return err
	}
	if err := b.accounts.DisableTwoFactor(ctx, a.ID); err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}
	slog.Info("two-factor disabled", "account_id", a.ID)
	return nil
}

// SendVerificationEmail mails a fresh verification link.
func (b *Backend) SendVerificationEmail(ctx context.Context, userID, email string) error {
	a, err := b.account(ctx, "send verification email", userID)
	if err != nil {
		return err
	}
	return b.sendVerification(ctx, a.ID, a.Email)
}

func (b *Backend) sendVerification(ctx context.Context, id uuid.UUID, email string) error {
	token, err := b.tokens.Create(ctx, id, models.PurposeEmailVerify, b.cfg.VerifyTTL)
	if err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return b.mailer.Send(ctx, Message{
		To:      email,
		Subject: "Confirm your email address",
		Body:    "Confirm your address with this link: " + b.link("/verify-email", token),
	})
}

// VerifyEmail redeems a verification token issued to userID.
func (b *Backend) VerifyEmail(ctx context.Context, userID, token string) error {
	a, err := b.account(ctx, "verify email", userID)
	if err != nil {
		return err
	}
	_, err = b.tokens.Consume(ctx, token, models.PurposeEmailVerify, uuid.NullUUID{UUID: a.ID, Valid: true},
		b.accounts.MarkEmailVerified)
	if errors.Is(err, store.ErrTokenInvalid) {
		return auth.ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	return nil
}

// ChangePassword replaces the password after checking the current one.
func (b *Backend) ChangePassword(ctx context.Context, userID, current, next string) error {
	a, err := b.account(ctx, "change password", userID)
	if err != nil {
		return err
	}
	if !b.accounts.CheckPassword(a, current) {
		return auth.ErrIncorrectPassword
	}
	if err := b.accounts.UpdatePassword(ctx, a.ID, next); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	slog.Info("password changed", "account_id", a.ID)
	return nil
}

// PurgeExpiredTokens deletes tokens that can no longer be redeemed.
func (b *Backend) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return b.tokens.DeleteExpired(ctx)
}

// link builds a storefront URL carrying token.
func (b *Backend) link(path, token string) string {
	return b.cfg.BaseURL + path + "?token=" + url.QueryEscape(token)
}
