// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package store provides database access methods for storefront accounts.
// Each store struct wraps a *sql.DB and exposes typed query methods.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/models"
)

// ErrDuplicateEmail is returned by Create when the email is taken.
var ErrDuplicateEmail = errors.New("email already registered")

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const accountColumns = `id, email, password_hash, display_name, role, email_verified,
	two_factor_enabled, totp_secret, phone_number, created_at, updated_at`

// AccountStore handles all account-related database operations.
type AccountStore struct {
	db   *sql.DB
	cost int
}

// NewAccountStore creates a new AccountStore with the given database connection.
func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db, cost: bcrypt.DefaultCost}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.Role, &a.EmailVerified,
		&a.TwoFactorEnabled, &a.TOTPSecret, &a.PhoneNumber, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

// FindByEmail retrieves an account by email address. Returns nil if not found.
func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return a, nil
}

// FindByID retrieves an account by its UUID. Returns nil if not found.
func (s *AccountStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return a, nil
}

// List returns all accounts ordered by creation date.
func (s *AccountStore) List(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// Create inserts a new account with a bcrypt-hashed password. It returns
// ErrDuplicateEmail when the address is already registered.
func (s *AccountStore) Create(ctx context.Context, email, password, displayName string, role models.Role) (*models.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	a, err := scanAccount(s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (email, password_hash, display_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+accountColumns,
		email, string(hash), displayName, role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

// CheckPassword verifies a plaintext password against the account's stored hash.
func (s *AccountStore) CheckPassword(a *models.Account, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
}

// UpdatePassword replaces the password hash of an account.
func (s *AccountStore) UpdatePassword(ctx context.Context, id uuid.UUID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.exec(ctx, "update password", `
		UPDATE accounts SET password_hash = $1, updated_at = NOW() WHERE id = $2
	`, string(hash), id)
}

// EnableTwoFactor turns on two-factor authentication. A nil secret keeps
// the enrolled one.
func (s *AccountStore) EnableTwoFactor(ctx context.Context, id uuid.UUID, secret *string, phone string) error {
	var phoneArg sql.NullString
	if phone != "" {
		phoneArg = sql.NullString{String: phone, Valid: true}
	}
	return s.exec(ctx, "enable two-factor", `
		UPDATE accounts
		SET two_factor_enabled = TRUE,
		    totp_secret = COALESCE($1, totp_secret),
		    phone_number = $2,
		    updated_at = NOW()
		WHERE id = $3
	`, secret, phoneArg, id)
}

// DisableTwoFactor turns off two-factor authentication and forgets the
// enrolled secret and phone number.
func (s *AccountStore) DisableTwoFactor(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, "disable two-factor", `
		UPDATE accounts
		SET two_factor_enabled = FALSE, totp_secret = NULL, phone_number = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
}

// MarkEmailVerified flags the account's email address as confirmed.
func (s *AccountStore) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, "mark email verified", `
		UPDATE accounts SET email_verified = TRUE, updated_at = NOW() WHERE id = $1
	`, id)
}

// Delete removes an account by ID. Its tokens go with it.
func (s *AccountStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, "delete account", `DELETE FROM accounts WHERE id = $1`, id)
}

// exec runs an UPDATE/DELETE that must touch exactly one account.
func (s *AccountStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
	}
	return nil
}
