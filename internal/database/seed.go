// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// seedIssuer names the storefront in authenticator apps.
const seedIssuer = "Storefront"

// seedAccount is one development account created by Seed.
type seedAccount struct {
	email       string
	password    string
	displayName string
	role        string
	twoFactor   bool
	phone       string
}

// seedAccounts mirror the demo allow-list so both backends accept the same
// credentials.
var seedAccounts = []seedAccount{
	{"admin@example.com", "Admin@123!", "Admin User", "admin", true, "+1234567890"},
	{"john.doe@example.com", "Customer@123!", "John Doe", "user", false, ""},
	{"jane.smith@example.com", "Customer@456!", "Jane Smith", "user", true, "+1987654321"},
}

// Seed populates the database with the development accounts. Accounts that
// already exist are left untouched. For every account with two-factor on, a
// fresh TOTP secret is generated and its otpauth URL logged so the
// developer can enroll an authenticator.
func Seed(ctx context.Context, db *sql.DB) error {
	created := 0
	for _, a := range seedAccounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("seed bcrypt: %w", err)
		}

		var secret, url, phone sql.NullString
		if a.twoFactor {
			key, err := totp.Generate(totp.GenerateOpts{Issuer: seedIssuer, AccountName: a.email})
			if err != nil {
				return fmt.Errorf("seed totp: %w", err)
			}
			secret = sql.NullString{String: key.Secret(), Valid: true}
			url = sql.NullString{String: key.URL(), Valid: true}
		}
		if a.phone != "" {
			phone = sql.NullString{String: a.phone, Valid: true}
		}

		res, err := db.ExecContext(ctx, `
			INSERT INTO accounts (email, password_hash, display_name, role, email_verified, two_factor_enabled, totp_secret, phone_number)
			VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7)
			ON CONFLICT (email) DO NOTHING
		`, a.email, string(hash), a.displayName, a.role, a.twoFactor, secret, phone)
		if err != nil {
			return fmt.Errorf("seed insert %s: %w", a.email, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		created++
		attrs := []any{"email", a.email, "password", a.password, "role", a.role}
		if url.Valid {
			attrs = append(attrs, "otpauth_url", url.String)
		}
		slog.Info("seeded account", attrs...)
	}

	if created == 0 {
		slog.Info("database already seeded, skipping")
	}
	return nil
}
