// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package auth

import "errors"

var (
	// Credential errors.
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrTwoFactorRequired    = errors.New("two-factor authentication required")
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	ErrIncorrectPassword    = errors.New("current password is incorrect")

	// Session errors.
	ErrNoActiveSession  = errors.New("no active session")
	ErrNotAdmin         = errors.New("admin session required")
	ErrOperationPending = errors.New("operation already in progress")

	// Account errors.
	ErrWeakPassword        = errors.New("weak password")
	ErrAccountExists       = errors.New("account already exists")
	ErrInvalidResetToken   = errors.New("invalid or expired token")
	ErrUnsupportedProvider = errors.New("unsupported social login provider")

	// ErrCorruptToken is returned by a TokenCodec that cannot decode a
	// persisted session.
	ErrCorruptToken = errors.New("corrupt session token")
)

// messages maps each sentinel to the sentence shown to the visitor.
var messages = []struct {
	err error
	msg string
}{
	{ErrInvalidCredentials, "Invalid email or password."},
	{ErrTwoFactorRequired, "Two-factor authentication required. Enter the code we sent you."},
	{ErrInvalidTwoFactorCode, "Invalid verification code. Please try again."},
	{ErrIncorrectPassword, "Current password is incorrect."},
	{ErrNoActiveSession, "No user logged in."},
	{ErrNotAdmin, "Only admins can change the admin password."},
	{ErrOperationPending, "Another request is still in progress. Please wait."},
	{ErrWeakPassword, "Password must be at least 8 characters long and contain uppercase, lowercase, number, and special character."},
	{ErrAccountExists, "An account with this email already exists."},
	{ErrInvalidResetToken, "This link is invalid or has expired."},
	{ErrUnsupportedProvider, "This sign-in provider is not supported."},
}

// Message returns the display string for err. Errors that are not part of
// the auth vocabulary get a generic sentence so internals never reach a form.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return "Something went wrong. Please try again."
}
