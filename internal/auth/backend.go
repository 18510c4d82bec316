// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package auth

import (
	"context"
	"fmt"
)

// Backend is the credential authority behind a SessionStore. It never
// touches session state; the store decides every transition.
//
// Implementations return the auth sentinel errors (ErrInvalidCredentials,
// ErrInvalidTwoFactorCode, ErrIncorrectPassword, ErrAccountExists,
// ErrInvalidResetToken, ErrUnsupportedProvider) so callers can match them
// with errors.Is.
type Backend interface {
	// Authenticate checks email/password and returns the matching identity.
	Authenticate(ctx context.Context, email, password string) (*Session, error)

	// VerifyTwoFactor checks a second-factor code for userID.
	VerifyTwoFactor(ctx context.Context, userID, code string) error

	// Register creates a new account and returns its identity.
	Register(ctx context.Context, name, email, password string) (*Session, error)

	// SocialLogin resolves an identity through a third-party provider.
	SocialLogin(ctx context.Context, provider Provider) (*Session, error)

	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error

	// EnableTwoFactor turns on the second factor for userID. It may return
	// an Enrollment when the factor needs to be provisioned on a device.
	EnableTwoFactor(ctx context.Context, userID, phoneNumber string) (*Enrollment, error)
	DisableTwoFactor(ctx context.Context, userID string) error

	SendVerificationEmail(ctx context.Context, userID, email string) error
	VerifyEmail(ctx context.Context, userID, token string) error

	// ChangePassword replaces the password of userID after checking current.
	ChangePassword(ctx context.Context, userID, current, next string) error
}

// Enrollment carries what a device needs to generate codes for a newly
// enabled second factor.
type Enrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// Provider names a social login provider.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
	ProviderTwitter  Provider = "twitter"
	ProviderGitHub   Provider = "github"
)

// ParseProvider validates a provider name.
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(name); p {
	case ProviderGoogle, ProviderFacebook, ProviderTwitter, ProviderGitHub:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
}
