// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMockDelay is the artificial latency of every MockBackend call.
const DefaultMockDelay = 500 * time.Millisecond

// Demo credentials served by MockBackend.
const (
	DemoAdminEmail    = "admin@example.com"
	DemoAdminPassword = "Admin@123!"
)

// MockAccount is one entry of the MockBackend allow-list.
type MockAccount struct {
	Session
	Password string
}

// DemoAccounts returns the fixed allow-list used by the storefront demo.
func DemoAccounts() []MockAccount {
	return []MockAccount{
		{
			Session: Session{
				UserID:           "admin-1",
				DisplayName:      "Admin User",
				Email:            DemoAdminEmail,
				Role:             RoleAdmin,
				EmailVerified:    true,
				TwoFactorEnabled: true,
				PhoneNumber:      "+1234567890",
			},
			Password: DemoAdminPassword,
		},
		{
			Session: Session{
				UserID:        "user-1",
				DisplayName:   "John Doe",
				Email:         "john.doe@example.com",
				Role:          RoleUser,
				EmailVerified: true,
			},
			Password: "Customer@123!",
		},
		{
			Session: Session{
				UserID:           "user-2",
				DisplayName:      "Jane Smith",
				Email:            "jane.smith@example.com",
				Role:             RoleUser,
				EmailVerified:    true,
				TwoFactorEnabled: true,
				PhoneNumber:      "+1987654321",
			},
			Password: "Customer@456!",
		},
	}
}

// MockBackend is a Backend over a fixed allow-list with artificial latency.
// Two-factor codes and reset tokens are not checked; Register hands out a
// fresh identity without storing it.
type MockBackend struct {
	// Logger receives the pretend emails. Nil means slog.Default().
	Logger *slog.Logger

	delay time.Duration

	mu       sync.Mutex
	accounts []*MockAccount
}

// NewMockBackend returns a MockBackend serving accounts, or DemoAccounts
// when none are given. A zero delay disables the artificial latency.
func NewMockBackend(delay time.Duration, accounts ...MockAccount) *MockBackend {
	if len(accounts) == 0 {
		accounts = DemoAccounts()
	}
	b := &MockBackend{delay: delay}
	for i := range accounts {
		a := accounts[i]
		b.accounts = append(b.accounts, &a)
	}
	return b
}

func (b *MockBackend) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// wait simulates the round trip. It returns early only if ctx is done.
func (b *MockBackend) wait(ctx context.Context) error {
	if b.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(b.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// find returns the account with the given email or id. Callers hold b.mu.
func (b *MockBackend) find(match func(*MockAccount) bool) *MockAccount {
	for _, a := range b.accounts {
		if match(a) {
			return a
		}
	}
	return nil
}

func (b *MockBackend) byID(userID string) *MockAccount {
	return b.find(func(a *MockAccount) bool { return a.UserID == userID })
}

// Authenticate matches email/password against the allow-list.
func (b *MockBackend) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)

	b.mu.Lock()
	defer b.mu.Unlock()
	a := b.find(func(a *MockAccount) bool { return a.Email == email })
	if a == nil || subtle.ConstantTimeCompare([]byte(a.Password), []byte(password)) != 1 {
		return nil, ErrInvalidCredentials
	}
	sess := a.Session
	return &sess, nil
}

// VerifyTwoFactor accepts any code.
func (b *MockBackend) VerifyTwoFactor(ctx context.Context, userID, code string) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.logger().Debug("mock two-factor code accepted", "user_id", userID)
	return nil
}

// Register returns an unverified identity for the new visitor.
func (b *MockBackend) Register(ctx context.Context, name, email, password string) (*Session, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.logger().Info("verification email sent", "email", email)
	return &Session{
		UserID:      uuid.NewString(),
		DisplayName: name,
		Email:       normalizeEmail(email),
		Role:        RoleUser,
	}, nil
}

// SocialLogin returns the shared demo social identity.
func (b *MockBackend) SocialLogin(ctx context.Context, provider Provider) (*Session, error) {
	if _, err := ParseProvider(string(provider)); err != nil {
		return nil, err
	}
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return &Session{
		UserID:        "social-" + string(provider),
		DisplayName:   "Social User",
		Email:         "social@example.com",
		Role:          RoleUser,
		EmailVerified: true,
	}, nil
}

// RequestPasswordReset pretends to send a reset email.
func (b *MockBackend) RequestPasswordReset(ctx context.Context, email string) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.logger().Info("password reset email sent", "email", email)
	return nil
}

// ResetPassword accepts any token.
func (b *MockBackend) ResetPassword(ctx context.Context, token, newPassword string) error {
	return b.wait(ctx)
}

// EnableTwoFactor flips the flag on a known account. No device enrollment
// is needed for the demo.
func (b *MockBackend) EnableTwoFactor(ctx context.Context, userID, phoneNumber string) (*Enrollment, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if a := b.byID(userID); a != nil {
		a.TwoFactorEnabled = true
		a.PhoneNumber = phoneNumber
	}
	return nil, nil
}

// DisableTwoFactor clears the flag on a known account.
func (b *MockBackend) DisableTwoFactor(ctx context.Context, userID string) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if a := b.byID(userID); a != nil {
		a.TwoFactorEnabled = false
		a.PhoneNumber = ""
	}
	return nil
}

// SendVerificationEmail pretends to send a verification link.
func (b *MockBackend) SendVerificationEmail(ctx context.Context, userID, email string) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.logger().Info("verification email sent", "email", email)
	return nil
}

// VerifyEmail accepts any token.
func (b *MockBackend) VerifyEmail(ctx context.Context, userID, token string) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if a := b.byID(userID); a != nil {
		a.EmailVerified = true
	}
	return nil
}

// ChangePassword checks current against the allow-list entry of userID.
func (b *MockBackend) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	a := b.byID(userID)
	if a == nil {
		return fmt.Errorf("change password: %w", ErrNoActiveSession)
	}
	if subtle.ConstantTimeCompare([]byte(a.Password), []byte(current)) != 1 {
		return ErrIncorrectPassword
	}
	a.Password = next
	return nil
}
