// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package models defines the data structures that map to database tables.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents an account's permission level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account is a storefront customer or back-office admin.
type Account struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"` // Never serialize the hash
	DisplayName      string    `json:"display_name"`
	Role             Role      `json:"role"`
	EmailVerified    bool      `json:"email_verified"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	TOTPSecret       *string   `json:"-"` // Nullable; set on enrollment
	PhoneNumber      *string   `json:"phone_number,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsAdmin returns true if the account has the admin role.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// HasTOTP reports whether the account has an enrolled authenticator.
func (a *Account) HasTOTP() bool {
	return a.TOTPSecret != nil && *a.TOTPSecret != ""
}

// Phone returns the phone number or "".
func (a *Account) Phone() string {
	if a.PhoneNumber == nil {
		return ""
	}
	return *a.PhoneNumber
}
