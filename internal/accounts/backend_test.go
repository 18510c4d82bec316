// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package accounts

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/store"
)

// fakeAccounts is an in-memory AccountStore. A non-nil passwordErr fails
// every UpdatePassword.
type fakeAccounts struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]*models.Account
	passwordErr error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: make(map[uuid.UUID]*models.Account)}
}

func (f *fakeAccounts) add(t *testing.T, email, password string, role models.Role) *models.Account {
	t.Helper()
	a, err := f.Create(context.Background(), email, password, "Test", role)
	if err != nil {
		t.Fatalf("add account: %v", err)
	}
	return a
}

func (f *fakeAccounts) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Email == email {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) FindByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byID[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (f *fakeAccounts) Create(_ context.Context, email, password, displayName string, role models.Role) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Email == email {
			return nil, store.ErrDuplicateEmail
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	a := &models.Account{ID: uuid.New(), Email: email, PasswordHash: string(hash), DisplayName: displayName, Role: role}
	f.byID[a.ID] = a
	c := *a
	return &c, nil
}

func (f *fakeAccounts) CheckPassword(a *models.Account, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
}

func (f *fakeAccounts) update(id uuid.UUID, fn func(*models.Account)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return errors.New("no such account")
	}
	fn(a)
	return nil
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, id uuid.UUID, password string) error {
	if f.passwordErr != nil {
		return f.passwordErr
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	return f.update(id, func(a *models.Account) { a.PasswordHash = string(hash) })
}

func (f *fakeAccounts) EnableTwoFactor(_ context.Context, id uuid.UUID, secret *string, phone string) error {
	return f.update(id, func(a *models.Account) {
		a.TwoFactorEnabled = true
		if secret != nil {
			a.TOTPSecret = secret
		}
		a.PhoneNumber = nil
		if phone != "" {
			a.PhoneNumber = &phone
		}
	})
}

func (f *fakeAccounts) DisableTwoFactor(_ context.Context, id uuid.UUID) error {
	return f.update(id, func(a *models.Account) {
		a.TwoFactorEnabled = false
		a.TOTPSecret = nil
		a.PhoneNumber = nil
	})
}

func (f *fakeAccounts) MarkEmailVerified(_ context.Context, id uuid.UUID) error {
	return f.update(id, func(a *models.Account) { a.EmailVerified = true })
}

// fakeTokens is an in-memory TokenStore.
type fakeTokens struct {
	mu     sync.Mutex
	tokens map[string]*models.AccountToken
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{tokens: make(map[string]*models.AccountToken)}
}

func (f *fakeTokens) Create(_ context.Context, accountID uuid.UUID, purpose models.TokenPurpose, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := uuid.NewString()
	f.tokens[token] = &models.AccountToken{AccountID: accountID, Purpose: purpose, ExpiresAt: time.Now().Add(ttl)}
	return token, nil
}

func (f *fakeTokens) Consume(ctx context.Context, token string, purpose models.TokenPurpose, owner uuid.NullUUID, apply func(context.Context, uuid.UUID) error) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[token]
	if !ok || t.Purpose != purpose || !t.Usable(time.Now()) {
		return uuid.Nil, store.ErrTokenInvalid
	}
	if owner.Valid && owner.UUID != t.AccountID {
		return uuid.Nil, store.ErrTokenInvalid
	}
	if apply != nil {
		if err := apply(ctx, t.AccountID); err != nil {
			return uuid.Nil, err
		}
	}
	now := time.Now()
	t.UsedAt = &now
	return t.AccountID, nil
}

func (f *fakeTokens) DeleteExpired(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, t := range f.tokens {
		if !t.Usable(time.Now()) {
			delete(f.tokens, k)
			n++
		}
	}
	return n, nil
}

// recordingMailer keeps every sent message.
type recordingMailer struct {
	mu   sync.Mutex
	sent []Message
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) last(t *testing.T) Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no email sent")
	}
	return m.sent[len(m.sent)-1]
}

// tokenFrom extracts the token query parameter of the link in msg.
func tokenFrom(t *testing.T, msg Message) string {
	t.Helper()
	i := strings.Index(msg.Body, "http")
	if i < 0 {
		t.Fatalf("no link in %q", msg.Body)
	}
	u, err := url.Parse(msg.Body[i:])
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	return u.Query().Get("token")
}

type fixture struct {
	backend  *Backend
	accounts *fakeAccounts
	tokens   *fakeTokens
	mailer   *recordingMailer
}

func newFixture() *fixture {
	f := &fixture{accounts: newFakeAccounts(), tokens: newFakeTokens(), mailer: &recordingMailer{}}
	f.backend = NewBackend(f.accounts, f.tokens, f.mailer, Config{BaseURL: "https://shop.example.com/"})
	return f
}

// ---------- Authenticate ----------

func TestAuthenticate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.accounts.add(t, "john.doe@example.com", "Customer@123!", models.RoleUser)

	sess, err := f.backend.Authenticate(ctx, " John.Doe@example.com", "Customer@123!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sess.UserID != a.ID.String() || sess.Role != auth.RoleUser {
		t.Errorf("session: %+v", sess)
	}

	for _, tc := range [][2]string{
		{"john.doe@example.com", "wrong"},
		{"nobody@example.com", "Customer@123!"},
	} {
		if _, err := f.backend.Authenticate(ctx, tc[0], tc[1]); !errors.Is(err, auth.ErrInvalidCredentials) {
			t.Errorf("Authenticate(%s): got %v, want ErrInvalidCredentials", tc[0], err)
		}
	}
}

// ---------- Two-factor ----------

func TestTwoFactorEnrollment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.accounts.add(t, "jane@example.com", "Customer@456!", models.RoleUser)
	userID := a.ID.String()

	// No secret enrolled yet: nothing validates.
	if err := f.backend.VerifyTwoFactor(ctx, userID, "123456"); !errors.Is(err, auth.ErrInvalidTwoFactorCode) {
		t.Errorf("before enrollment: got %v", err)
	}

	enrollment, err := f.backend.EnableTwoFactor(ctx, userID, "+15551234567")
	if err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}
	if enrollment == nil || enrollment.Secret == "" {
		t.Fatal("expected an enrollment with a secret")
	}
	if !strings.HasPrefix(enrollment.URL, "otpauth://totp/") || !strings.Contains(enrollment.URL, "issuer=Storefront") {
		t.Errorf("enrollment URL: %q", enrollment.URL)
	}

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if err := f.backend.VerifyTwoFactor(ctx, userID, code); err != nil {
		t.Errorf("valid code rejected: %v", err)
	}
	if err := f.backend.VerifyTwoFactor(ctx, userID, "000000x"); !errors.Is(err, auth.ErrInvalidTwoFactorCode) {
		t.Errorf("bad code: got %v", err)
	}

	sess, _ := f.backend.Authenticate(ctx, "jane@example.com", "Customer@456!")
	if !sess.TwoFactorEnabled || sess.PhoneNumber != "+15551234567" {
		t.Errorf("session after enable: %+v", sess)
	}

	if err := f.backend.DisableTwoFactor(ctx, userID); err != nil {
		t.Fatalf("DisableTwoFactor: %v", err)
	}
	if err := f.backend.VerifyTwoFactor(ctx, userID, code); !errors.Is(err, auth.ErrInvalidTwoFactorCode) {
		t.Errorf("after disable: got %v", err)
	}
}

func TestVerifyTwoFactorUnknownUser(t *testing.T) {
	f := newFixture()
	for _, id := range []string{"not-a-uuid", uuid.NewString()} {
		if err := f.backend.VerifyTwoFactor(context.Background(), id, "123456"); !errors.Is(err, auth.ErrInvalidTwoFactorCode) {
			t.Errorf("VerifyTwoFactor(%s): got %v", id, err)
		}
	}
}

// ---------- Register / email verification ----------

func TestRegisterSendsVerification(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sess, err := f.backend.Register(ctx, " New Person ", "New@Example.com", "Str0ng!Pass")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if sess.Email != "new@example.com" || sess.DisplayName != "New Person" || sess.EmailVerified {
		t.Errorf("session: %+v", sess)
	}

	msg := f.mailer.last(t)
	if msg.To != "new@example.com" {
		t.Errorf("mail to: %q", msg.To)
	}
	if !strings.Contains(msg.Body, "https://shop.example.com/verify-email?token=") {
		t.Errorf("mail body: %q", msg.Body)
	}

	token := tokenFrom(t, msg)
	if err := f.backend.VerifyEmail(ctx, sess.UserID, token); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	after, _ := f.backend.Authenticate(ctx, "new@example.com", "Str0ng!Pass")
	if !after.EmailVerified {
		t.Error("email should be verified")
	}
	if err := f.backend.VerifyEmail(ctx, sess.UserID, token); !errors.Is(err, auth.ErrInvalidResetToken) {
		t.Errorf("reused token: got %v", err)
	}
}

func TestRegisterRejectsDuplicatesAndWeakPasswords(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.accounts.add(t, "taken@example.com", "Str0ng!Pass", models.RoleUser)

	if _, err := f.backend.Register(ctx, "X", "taken@example.com", "Str0ng!Pass"); !errors.Is(err, auth.ErrAccountExists) {
		t.Errorf("duplicate: got %v, want ErrAccountExists", err)
	}
	if _, err := f.backend.Register(ctx, "X", "weak@example.com", "weak"); !errors.Is(err, auth.ErrWeakPassword) {
		t.Errorf("weak: got %v, want ErrWeakPassword", err)
	}
}

func TestVerifyEmailRejectsOtherAccountsToken(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.accounts.add(t, "alice@example.com", "Str0ng!Pass", models.RoleUser)
	bob := f.accounts.add(t, "bob@example.com", "Str0ng!Pass", models.RoleUser)

	if err := f.backend.SendVerificationEmail(ctx, alice.ID.String(), alice.Email); err != nil {
		t.Fatalf("SendVerificationEmail: %v", err)
	}
	token := tokenFrom(t, f.mailer.last(t))
	if err := f.backend.VerifyEmail(ctx, bob.ID.String(), token); !errors.Is(err, auth.ErrInvalidResetToken) {
		t.Errorf("got %v, want ErrInvalidResetToken", err)
	}

	// The attempt must not burn alice's token.
	if err := f.backend.VerifyEmail(ctx, alice.ID.String(), token); err != nil {
		t.Fatalf("owner VerifyEmail after foreign attempt: %v", err)
	}
	if got, _ := f.accounts.FindByID(ctx, alice.ID); !got.EmailVerified {
		t.Error("alice should be verified")
	}
	if got, _ := f.accounts.FindByID(ctx, bob.ID); got.EmailVerified {
		t.Error("bob must stay unverified")
	}
}

// ---------- Password reset ----------

func TestPasswordReset(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.accounts.add(t, "john.doe@example.com", "Customer@123!", models.RoleUser)

	// Unknown addresses succeed without mail.
	if err := f.backend.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset(unknown): %v", err)
	}
	if len(f.mailer.sent) != 0 {
		t.Fatal("no mail should be sent for unknown addresses")
	}

	if err := f.backend.RequestPasswordReset(ctx, "john.doe@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	token := tokenFrom(t, f.mailer.last(t))

	if err := f.backend.ResetPassword(ctx, token, "weak"); !errors.Is(err, auth.ErrWeakPassword) {
		t.Errorf("weak: got %v", err)
	}
	if err := f.backend.ResetPassword(ctx, "bogus", "N3w!Password"); !errors.Is(err, auth.ErrInvalidResetToken) {
		t.Errorf("bogus token: got %v", err)
	}
	if err := f.backend.ResetPassword(ctx, token, "N3w!Password"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := f.backend.Authenticate(ctx, "john.doe@example.com", "N3w!Password"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
	if err := f.backend.ResetPassword(ctx, token, "An0ther!Pass"); !errors.Is(err, auth.ErrInvalidResetToken) {
		t.Errorf("reused token: got %v", err)
	}
}

func TestFailedPasswordResetKeepsToken(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.accounts.add(t, "john.doe@example.com", "Customer@123!", models.RoleUser)

	if err := f.backend.RequestPasswordReset(ctx, "john.doe@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	token := tokenFrom(t, f.mailer.last(t))

	boom := errors.New("connection reset")
	f.accounts.passwordErr = boom
	if err := f.backend.ResetPassword(ctx, token, "N3w!Password"); !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped %v", err, boom)
	}

	f.accounts.passwordErr = nil
	if err := f.backend.ResetPassword(ctx, token, "N3w!Password"); err != nil {
		t.Fatalf("retry with the same token: %v", err)
	}
	if _, err := f.backend.Authenticate(ctx, "john.doe@example.com", "N3w!Password"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
}

// ---------- ChangePassword ----------

func TestChangePassword(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.accounts.add(t, "admin@example.com", "Admin@123!", models.RoleAdmin)

	if err := f.backend.ChangePassword(ctx, a.ID.String(), "wrong", "N3w!Password"); !errors.Is(err, auth.ErrIncorrectPassword) {
		t.Errorf("wrong current: got %v", err)
	}
	if err := f.backend.ChangePassword(ctx, uuid.NewString(), "Admin@123!", "N3w!Password"); !errors.Is(err, auth.ErrNoActiveSession) {
		t.Errorf("unknown user: got %v", err)
	}
	if err := f.backend.ChangePassword(ctx, a.ID.String(), "Admin@123!", "N3w!Password"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := f.backend.Authenticate(ctx, "admin@example.com", "N3w!Password"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
}

func TestSocialLoginUnsupported(t *testing.T) {
	f := newFixture()
	if _, err := f.backend.SocialLogin(context.Background(), auth.ProviderGoogle); !errors.Is(err, auth.ErrUnsupportedProvider) {
		t.Errorf("got %v, want ErrUnsupportedProvider", err)
	}
}

// ---------- Through the session store ----------

func TestSessionStoreOverDatabaseBackend(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.accounts.add(t, "admin@example.com", "Admin@123!", models.RoleAdmin)
	enrollment, err := f.backend.EnableTwoFactor(ctx, a.ID.String(), "")
	if err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}

	s := auth.NewSessionStore(auth.NewMemoryStorage(), f.backend)
	if _, err := s.AdminLogin(ctx, "admin@example.com", "Admin@123!", ""); !errors.Is(err, auth.ErrTwoFactorRequired) {
		t.Fatalf("AdminLogin: got %v, want ErrTwoFactorRequired", err)
	}
	if _, err := s.VerifyTwoFactor(ctx, "12345"); !errors.Is(err, auth.ErrInvalidTwoFactorCode) {
		t.Errorf("bad code: got %v", err)
	}
	code, _ := totp.GenerateCode(enrollment.Secret, time.Now())
	sess, err := s.VerifyTwoFactor(ctx, code)
	if err != nil {
		t.Fatalf("VerifyTwoFactor: %v", err)
	}
	if !sess.IsAdmin() {
		t.Error("expected admin session")
	}
}

func TestPurgeExpiredTokens(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.accounts.add(t, "x@example.com", "Str0ng!Pass", models.RoleUser)
	f.tokens.Create(ctx, a.ID, models.PurposeEmailVerify, -time.Minute)
	f.tokens.Create(ctx, a.ID, models.PurposeEmailVerify, time.Hour)

	n, err := f.backend.PurgeExpiredTokens(ctx)
	if err != nil || n != 1 {
		t.Errorf("PurgeExpiredTokens: got %d, %v; want 1", n, err)
	}
}
