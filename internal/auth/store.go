// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// SessionStore is the session state machine of one visitor.
//
//	Anonymous --login--> Authenticating --ok--> Authenticated
//	                                   \--code needed--> TwoFactorPending --verify--> Authenticated
//	any state --logout--> Anonymous
//
// The store never holds its lock across a Backend or Storage call. Mutating
// operations are serialized with a busy flag: a second one issued while the
// first is in flight fails with ErrOperationPending. Logout is exempt and
// always succeeds in resetting the state: it bumps epoch, and an operation
// that started under an older epoch drops its result instead of applying it.
type SessionStore struct {
	storage Storage
	backend Backend
	codec   TokenCodec
	logger  *slog.Logger

	mu         sync.Mutex
	state      State
	session    *Session
	pending    *pendingLogin
	remembered bool
	busy       bool
	epoch      uint64

	restoreOnce sync.Once
	restoreErr  error
}

// pendingLogin is a login attempt that passed the password check and waits
// for a second-factor code.
type pendingLogin struct {
	session Session
	persist bool
}

// Option configures a SessionStore.
type Option func(*SessionStore)

// WithCodec sets the codec used for the persisted token. The default is
// JSONCodec.
func WithCodec(c TokenCodec) Option {
	return func(s *SessionStore) { s.codec = c }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *SessionStore) { s.logger = l }
}

// NewSessionStore creates an anonymous store. Call Restore once to pick up
// a remembered session from storage.
func NewSessionStore(storage Storage, backend Backend, opts ...Option) *SessionStore {
	s := &SessionStore{
		storage: storage,
		backend: backend,
		codec:   JSONCodec{},
		logger:  slog.Default(),
		state:   StateAnonymous,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *SessionStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{State: s.state, Remembered: s.remembered}
	if s.session != nil {
		u := *s.session
		snap.User = &u
	}
	if s.pending != nil {
		snap.PendingEmail = s.pending.session.Email
	}
	return snap
}

// Current returns a copy of the live session.
func (s *SessionStore) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.state == StateTwoFactorPending {
		return Session{}, false
	}
	return *s.session, true
}

// Restore reads the remembered session from storage. Only the first call
// does any work; concurrent callers wait for it. A token that cannot be
// trusted (undecodable, or carrying the admin role) is wiped with Logout.
func (s *SessionStore) Restore(ctx context.Context) error {
	s.restoreOnce.Do(func() {
		s.restoreErr = s.restore(ctx)
	})
	return s.restoreErr
}

func (s *SessionStore) restore(ctx context.Context) error {
	remember, ok, err := s.storage.Get(ctx, KeyRememberMe)
	if err != nil {
		s.logger.Warn("session restore failed", "error", err)
		return errors.Join(fmt.Errorf("restore session: %w", err), s.Logout(ctx))
	}
	if !ok || remember != "true" {
		return nil
	}

	token, ok, err := s.storage.Get(ctx, KeyUser)
	if err != nil {
		s.logger.Warn("session restore failed", "error", err)
		return errors.Join(fmt.Errorf("restore session: %w", err), s.Logout(ctx))
	}
	if !ok {
		return nil
	}

	sess, err := s.codec.Decode(token)
	if err == nil && sess.IsAdmin() {
		err = fmt.Errorf("%w: admin sessions are never remembered", ErrCorruptToken)
	}
	if err != nil {
		s.logger.Warn("discarding persisted session", "error", err)
		return s.Logout(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAnonymous {
		// A login finished first; it wins.
		return nil
	}
	s.session = sess
	s.state = StateAuthenticated
	s.remembered = true
	s.logger.Debug("session restored", "user_id", sess.UserID)
	return nil
}

// Login authenticates a visitor. When the account needs a second factor
// and twoFactorCode is empty the store moves to StateTwoFactorPending and
// Login returns ErrTwoFactorRequired; finish with VerifyTwoFactor. The
// session is persisted only when rememberMe is set and the account is not
// an admin.
func (s *SessionStore) Login(ctx context.Context, email, password string, rememberMe bool, twoFactorCode string) (*Session, error) {
	return s.login(ctx, email, password, rememberMe, twoFactorCode, false)
}

// AdminLogin is Login restricted to admin accounts. It never persists.
func (s *SessionStore) AdminLogin(ctx context.Context, email, password, twoFactorCode string) (*Session, error) {
	return s.login(ctx, email, password, false, twoFactorCode, true)
}

func (s *SessionStore) login(ctx context.Context, email, password string, rememberMe bool, code string, adminOnly bool) (*Session, error) {
	prev, epoch, err := s.beginAuthenticating()
	if err != nil {
		return nil, err
	}
	defer s.end()

	sess, err := s.backend.Authenticate(ctx, email, password)
	if err == nil && adminOnly && !sess.IsAdmin() {
		err = ErrInvalidCredentials
	}
	if err != nil {
		s.setState(prev, epoch)
		s.logger.Warn("login failed", "email", email, "admin", adminOnly, "error", err)
		return nil, err
	}

	persist := rememberMe && !sess.IsAdmin()
	if sess.TwoFactorEnabled {
		if code == "" {
			if !s.enterTwoFactorPending(*sess, persist, epoch) {
				return nil, ErrNoActiveSession
			}
			return nil, ErrTwoFactorRequired
		}
		if err := s.backend.VerifyTwoFactor(ctx, sess.UserID, code); err != nil {
			s.enterTwoFactorPending(*sess, persist, epoch)
			s.logger.Warn("two-factor verification failed", "user_id", sess.UserID, "error", err)
			return nil, err
		}
	}

	return s.establish(ctx, *sess, persist, epoch)
}

// VerifyTwoFactor completes a pending login with code. With a live session
// it re-checks the code without changing state.
func (s *SessionStore) VerifyTwoFactor(ctx context.Context, code string) (*Session, error) {
	epoch, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer s.end()

	s.mu.Lock()
	pending := s.pending
	live := s.session
	s.mu.Unlock()

	switch {
	case pending != nil:
		if err := s.backend.VerifyTwoFactor(ctx, pending.session.UserID, code); err != nil {
			s.logger.Warn("two-factor verification failed", "user_id", pending.session.UserID, "error", err)
			return nil, err
		}
		return s.establish(ctx, pending.session, pending.persist, epoch)
	case live != nil:
		if err := s.backend.VerifyTwoFactor(ctx, live.UserID, code); err != nil {
			return nil, err
		}
		out := *live
		return &out, nil
	default:
		return nil, ErrNoActiveSession
	}
}

// Signup registers a new account and signs it in, unverified and without
// a second factor. The new session is not remembered. A password scoring
// below MinSignupScore fails with a *StrengthError before the backend is
// asked.
func (s *SessionStore) Signup(ctx context.Context, name, email, password string) (*Session, error) {
	if strength := MeasurePassword(password); !strength.Acceptable() {
		return nil, &StrengthError{Strength: strength}
	}
	prev, epoch, err := s.beginAuthenticating()
	if err != nil {
		return nil, err
	}
	defer s.end()

	sess, err := s.backend.Register(ctx, name, email, password)
	if err != nil {
		s.setState(prev, epoch)
		s.logger.Warn("signup failed", "email", email, "error", err)
		return nil, err
	}
	sess.EmailVerified = false
	sess.TwoFactorEnabled = false
	return s.establish(ctx, *sess, false, epoch)
}

// SocialLogin signs in through a third-party provider. The session is not
// remembered.
func (s *SessionStore) SocialLogin(ctx context.Context, provider Provider) (*Session, error) {
	if _, err := ParseProvider(string(provider)); err != nil {
		return nil, err
	}
	prev, epoch, err := s.beginAuthenticating()
	if err != nil {
		return nil, err
	}
	defer s.end()

	sess, err := s.backend.SocialLogin(ctx, provider)
	if err != nil {
		s.setState(prev, epoch)
		s.logger.Warn("social login failed", "provider", provider, "error", err)
		return nil, err
	}
	return s.establish(ctx, *sess, false, epoch)
}

// Logout drops the session and any pending login and wipes the persisted
// token. The store is anonymous afterwards even if storage fails; the
// storage error is returned.
func (s *SessionStore) Logout(ctx context.Context) error {
	s.mu.Lock()
	userID := ""
	if s.session != nil {
		userID = s.session.UserID
	}
	s.session = nil
	s.pending = nil
	s.remembered = false
	s.state = StateAnonymous
	s.epoch++
	s.mu.Unlock()

	if err := s.clearPersisted(ctx); err != nil {
		s.logger.Warn("logout could not clear storage", "error", err)
		return fmt.Errorf("logout: %w", err)
	}
	s.logger.Debug("logged out", "user_id", userID)
	return nil
}

// RequestPasswordReset asks the backend to send reset instructions.
func (s *SessionStore) RequestPasswordReset(ctx context.Context, email string) error {
	if _, err := s.begin(); err != nil {
		return err
	}
	defer s.end()
	return s.backend.RequestPasswordReset(ctx, email)
}

// ResetPassword sets a new password using a reset token. The password must
// satisfy CheckPasswordStrength.
func (s *SessionStore) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := CheckPasswordStrength(newPassword); err != nil {
		return err
	}
	if _, err := s.begin(); err != nil {
		return err
	}
	defer s.end()
	return s.backend.ResetPassword(ctx, token, newPassword)
}

// ChangeAdminPassword replaces the password of the signed-in admin.
func (s *SessionStore) ChangeAdminPassword(ctx context.Context, currentPassword, newPassword string) error {
	if _, err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	cur, ok := s.Current()
	if !ok || !cur.IsAdmin() {
		return ErrNotAdmin
	}
	if err := CheckPasswordStrength(newPassword); err != nil {
		return err
	}
	if err := s.backend.ChangePassword(ctx, cur.UserID, currentPassword, newPassword); err != nil {
		return err
	}
	s.logger.Info("admin password changed", "user_id", cur.UserID)
	return nil
}

// EnableTwoFactor turns on the second factor for the live session.
func (s *SessionStore) EnableTwoFactor(ctx context.Context, phoneNumber string) (*Session, *Enrollment, error) {
	epoch, err := s.begin()
	if err != nil {
		return nil, nil, err
	}
	defer s.end()

	cur, ok := s.Current()
	if !ok {
		return nil, nil, ErrNoActiveSession
	}
	enrollment, err := s.backend.EnableTwoFactor(ctx, cur.UserID, phoneNumber)
	if err != nil {
		return nil, nil, err
	}
	cur.TwoFactorEnabled = true
	cur.PhoneNumber = phoneNumber
	sess, err := s.update(ctx, cur, epoch)
	if err != nil {
		return nil, nil, err
	}
	return sess, enrollment, nil
}

// DisableTwoFactor turns off the second factor for the live session.
func (s *SessionStore) DisableTwoFactor(ctx context.Context) (*Session, error) {
	epoch, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer s.end()

	cur, ok := s.Current()
	if !ok {
		return nil, ErrNoActiveSession
	}
	if err := s.backend.DisableTwoFactor(ctx, cur.UserID); err != nil {
		return nil, err
	}
	cur.TwoFactorEnabled = false
	cur.PhoneNumber = ""
	return s.update(ctx, cur, epoch)
}

// SendVerificationEmail asks the backend to mail a verification link to
// the live session's address.
func (s *SessionStore) SendVerificationEmail(ctx context.Context) error {
	if _, err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	cur, ok := s.Current()
	if !ok {
		return ErrNoActiveSession
	}
	return s.backend.SendVerificationEmail(ctx, cur.UserID, cur.Email)
}

// VerifyEmail confirms the live session's address with token.
func (s *SessionStore) VerifyEmail(ctx context.Context, token string) (*Session, error) {
	epoch, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer s.end()

	cur, ok := s.Current()
	if !ok {
		return nil, ErrNoActiveSession
	}
	if err := s.backend.VerifyEmail(ctx, cur.UserID, token); err != nil {
		return nil, err
	}
	cur.EmailVerified = true
	return s.update(ctx, cur, epoch)
}

// begin claims the busy flag and returns the current epoch.
func (s *SessionStore) begin() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return 0, ErrOperationPending
	}
	s.busy = true
	return s.epoch, nil
}

// beginAuthenticating claims the busy flag and enters StateAuthenticating,
// returning the state to fall back to if the attempt fails.
func (s *SessionStore) beginAuthenticating() (State, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return "", 0, ErrOperationPending
	}
	s.busy = true
	prev := s.state
	s.state = StateAuthenticating
	return prev, s.epoch, nil
}

func (s *SessionStore) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// setState restores st unless a logout ran since epoch.
func (s *SessionStore) setState(st State, epoch uint64) {
	s.mu.Lock()
	if s.epoch == epoch {
		s.state = st
	}
	s.mu.Unlock()
}

// enterTwoFactorPending replaces any live session with a pending attempt.
// It reports false, changing nothing, when a logout ran since epoch.
func (s *SessionStore) enterTwoFactorPending(sess Session, persist bool, epoch uint64) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.session = nil
	s.remembered = false
	s.pending = &pendingLogin{session: sess, persist: persist}
	s.state = StateTwoFactorPending
	s.mu.Unlock()
	s.logger.Debug("two-factor code required", "user_id", sess.UserID)
	return true
}

// establish makes sess the live session and brings storage in line with
// it: written when persist is set, cleared otherwise. Admin sessions are
// never written. A storage failure is logged; the visitor stays signed in.
// If a logout ran since epoch the session is dropped and establish returns
// ErrNoActiveSession.
func (s *SessionStore) establish(ctx context.Context, sess Session, persist bool, epoch uint64) (*Session, error) {
	if sess.IsAdmin() {
		persist = false
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.logger.Debug("login dropped after logout", "user_id", sess.UserID)
		return nil, ErrNoActiveSession
	}
	live := sess
	s.session = &live
	s.pending = nil
	s.remembered = persist
	s.state = StateAuthenticated
	s.mu.Unlock()

	var err error
	if persist {
		err = s.persist(ctx, sess)
	} else {
		err = s.clearPersisted(ctx)
	}
	if err != nil {
		s.logger.Warn("session storage out of date", "user_id", sess.UserID, "error", err)
	}
	if persist && s.loggedOutSince(epoch) {
		// Logout cleared storage before the write above landed.
		if err := s.clearPersisted(ctx); err != nil {
			s.logger.Warn("session storage out of date", "user_id", sess.UserID, "error", err)
		}
		return nil, ErrNoActiveSession
	}

	s.logger.Debug("authenticated", "user_id", sess.UserID, "role", sess.Role, "remembered", persist)
	out := sess
	return &out, nil
}

// update replaces the live session with sess if it still belongs to the
// same user, rewriting the persisted token when one was written. It fails
// with ErrNoActiveSession when a logout ran since epoch.
func (s *SessionStore) update(ctx context.Context, sess Session, epoch uint64) (*Session, error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	if s.session == nil || s.session.UserID != sess.UserID {
		s.mu.Unlock()
		out := sess
		return &out, nil
	}
	*s.session = sess
	remembered := s.remembered
	s.mu.Unlock()

	if remembered {
		if err := s.persist(ctx, sess); err != nil {
			s.logger.Warn("session storage out of date", "user_id", sess.UserID, "error", err)
		}
		if s.loggedOutSince(epoch) {
			if err := s.clearPersisted(ctx); err != nil {
				s.logger.Warn("session storage out of date", "user_id", sess.UserID, "error", err)
			}
			return nil, ErrNoActiveSession
		}
	}
	out := sess
	return &out, nil
}

func (s *SessionStore) loggedOutSince(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch != epoch
}

func (s *SessionStore) persist(ctx context.Context, sess Session) error {
	token, err := s.codec.Encode(sess)
	if err != nil {
		return err
	}
	if err := s.storage.Set(ctx, KeyUser, token); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	if err := s.storage.Set(ctx, KeyRememberMe, "true"); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (s *SessionStore) clearPersisted(ctx context.Context) error {
	return errors.Join(
		s.storage.Remove(ctx, KeyUser),
		s.storage.Remove(ctx, KeyRememberMe),
	)
}
