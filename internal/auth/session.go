// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package auth holds the storefront's client session state machine. A
// SessionStore tracks who the current visitor is (anonymous, mid-login,
// waiting for a two-factor code, or signed in) and optionally persists the
// signed-in identity through a key/value Storage when the visitor asks to
// be remembered. Credential checks are delegated to a Backend so the demo
// allow-list can be swapped for a real account store.
package auth

// Role is the permission level attached to a session.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Session is the identity of the signed-in visitor. The JSON shape is the
// one written under the "user" storage key.
type Session struct {
	UserID           string `json:"id"`
	DisplayName      string `json:"name"`
	Email            string `json:"email"`
	Role             Role   `json:"role"`
	EmailVerified    bool   `json:"isEmailVerified"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
	PhoneNumber      string `json:"phoneNumber,omitempty"`
}

// IsAdmin reports whether the session carries the admin role.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// State is the position of a SessionStore in the login state machine.
type State string

const (
	StateAnonymous        State = "anonymous"
	StateAuthenticating   State = "authenticating"
	StateTwoFactorPending State = "two_factor_pending"
	StateAuthenticated    State = "authenticated"
)

// Snapshot is a point-in-time copy of a SessionStore. It is safe to keep
// and serialize after the store has moved on.
type Snapshot struct {
	State State `json:"state"`

	// User is set only in StateAuthenticated (or while a new attempt is
	// authenticating on top of a live session).
	User *Session `json:"user,omitempty"`

	// PendingEmail names the account waiting for a two-factor code.
	PendingEmail string `json:"pending_email,omitempty"`

	// Remembered reports whether the live session was written to storage.
	Remembered bool `json:"remembered"`
}

// IsAuthenticated reports whether a session is live.
func (s Snapshot) IsAuthenticated() bool {
	return s.User != nil && s.State != StateTwoFactorPending
}

// IsAdmin reports whether the live session belongs to an admin.
func (s Snapshot) IsAdmin() bool {
	return s.IsAuthenticated() && s.User.IsAdmin()
}

// RequiresTwoFactor reports whether a login attempt is waiting for a code.
func (s Snapshot) RequiresTwoFactor() bool {
	return s.State == StateTwoFactorPending
}
