// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/models"
)

var accountCols = []string{
	"id", "email", "password_hash", "display_name", "role", "email_verified",
	"two_factor_enabled", "totp_secret", "phone_number", "created_at", "updated_at",
}

// ---------- sqlmock unit tests ----------

func TestAccountStoreFindByEmailMock(t *testing.T) {
	db, mock := mockDB(t)
	s := NewAccountStore(db)
	ctx := context.Background()

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM accounts WHERE email = \\$1").
		WithArgs("john.doe@example.com").
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(id.String(), "john.doe@example.com", "hash", "John Doe", "user", true, true, "SECRET", "+15551234567", now, now))

	a, err := s.FindByEmail(ctx, "john.doe@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if a.ID != id || a.Role != models.RoleUser || !a.EmailVerified || !a.TwoFactorEnabled {
		t.Errorf("account: got %+v", a)
	}
	if !a.HasTOTP() || a.Phone() != "+15551234567" {
		t.Errorf("nullable columns not scanned: %+v", a)
	}

	mock.ExpectQuery("SELECT .* FROM accounts WHERE email = \\$1").
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)
	a, err = s.FindByEmail(ctx, "nobody@example.com")
	if err != nil || a != nil {
		t.Errorf("not found: got %v, %v; want nil, nil", a, err)
	}
}

func TestAccountStoreCreateDuplicateMock(t *testing.T) {
	db, mock := mockDB(t)
	s := NewAccountStore(db)
	s.cost = bcrypt.MinCost

	mock.ExpectQuery("INSERT INTO accounts").
		WithArgs("john.doe@example.com", sqlmock.AnyArg(), "John", models.RoleUser).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	_, err := s.Create(context.Background(), "john.doe@example.com", "Customer@123!", "John", models.RoleUser)
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("got %v, want ErrDuplicateEmail", err)
	}
}

func TestAccountStoreCreateMock(t *testing.T) {
	db, mock := mockDB(t)
	s := NewAccountStore(db)
	s.cost = bcrypt.MinCost

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery("INSERT INTO accounts").
		WithArgs("new@example.com", sqlmock.AnyArg(), "New", models.RoleUser).
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(id.String(), "new@example.com", "$2a$04$hash", "New", "user", false, false, nil, nil, now, now))

	a, err := s.Create(context.Background(), "new@example.com", "Str0ng!Pass", "New", models.RoleUser)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID != id || a.EmailVerified || a.HasTOTP() || a.PhoneNumber != nil {
		t.Errorf("account: got %+v", a)
	}
}

func TestAccountStoreUpdateMissingAccountMock(t *testing.T) {
	db, mock := mockDB(t)
	s := NewAccountStore(db)
	id := uuid.New()

	mock.ExpectExec("UPDATE accounts SET email_verified = TRUE").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.MarkEmailVerified(context.Background(), id)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("got %v, want sql.ErrNoRows", err)
	}
}

func TestAccountStoreTwoFactorMock(t *testing.T) {
	db, mock := mockDB(t)
	s := NewAccountStore(db)
	ctx := context.Background()
	id := uuid.New()
	secret := "JBSWY3DPEHPK3PXP"

	mock.ExpectExec("UPDATE accounts\\s+SET two_factor_enabled = TRUE").
		WithArgs(&secret, sql.NullString{String: "+15551234567", Valid: true}, id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE accounts\\s+SET two_factor_enabled = FALSE").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.EnableTwoFactor(ctx, id, &secret, "+15551234567"); err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}
	if err := s.DisableTwoFactor(ctx, id); err != nil {
		t.Fatalf("DisableTwoFactor: %v", err)
	}
}

func TestAccountStoreCheckPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("Customer@123!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	s := &AccountStore{}
	a := &models.Account{PasswordHash: string(hash)}

	if !s.CheckPassword(a, "Customer@123!") {
		t.Error("CheckPassword should accept the right password")
	}
	if s.CheckPassword(a, "customer@123!") {
		t.Error("CheckPassword should reject the wrong password")
	}
}

// ---------- PostgreSQL integration tests ----------

func TestAccountStoreLifecycle(t *testing.T) {
	db := testDB(t)
	s := NewAccountStore(db)
	ctx := context.Background()

	email := "lifecycle@store-test.local"
	t.Cleanup(func() { cleanAccounts(t, db, email) })

	a, err := s.Create(ctx, email, "Str0ng!Pass", "Life Cycle", models.RoleUser)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == uuid.Nil {
		t.Error("expected non-nil UUID")
	}
	if a.PasswordHash == "Str0ng!Pass" {
		t.Error("password hash must not be plaintext")
	}
	if a.EmailVerified || a.TwoFactorEnabled {
		t.Errorf("new account flags: %+v", a)
	}

	if _, err := s.Create(ctx, email, "x", "Dup", models.RoleUser); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("duplicate Create: got %v, want ErrDuplicateEmail", err)
	}

	found, err := s.FindByEmail(ctx, email)
	if err != nil || found == nil || found.ID != a.ID {
		t.Fatalf("FindByEmail: got %v, %v", found, err)
	}

	if err := s.UpdatePassword(ctx, a.ID, "N3w!Password"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	found, _ = s.FindByID(ctx, a.ID)
	if !s.CheckPassword(found, "N3w!Password") {
		t.Error("new password should verify")
	}

	secret := "JBSWY3DPEHPK3PXP"
	if err := s.EnableTwoFactor(ctx, a.ID, &secret, "+15551234567"); err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}
	// A nil secret keeps the enrolled one.
	if err := s.EnableTwoFactor(ctx, a.ID, nil, "+15557654321"); err != nil {
		t.Fatalf("EnableTwoFactor (keep secret): %v", err)
	}
	found, _ = s.FindByID(ctx, a.ID)
	if !found.TwoFactorEnabled || !found.HasTOTP() || *found.TOTPSecret != secret {
		t.Errorf("after enable: %+v", found)
	}
	if found.Phone() != "+15557654321" {
		t.Errorf("phone: got %q", found.Phone())
	}

	if err := s.DisableTwoFactor(ctx, a.ID); err != nil {
		t.Fatalf("DisableTwoFactor: %v", err)
	}
	if err := s.MarkEmailVerified(ctx, a.ID); err != nil {
		t.Fatalf("MarkEmailVerified: %v", err)
	}
	found, _ = s.FindByID(ctx, a.ID)
	if found.TwoFactorEnabled || found.HasTOTP() || found.PhoneNumber != nil || !found.EmailVerified {
		t.Errorf("after disable/verify: %+v", found)
	}

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if gone, _ := s.FindByID(ctx, a.ID); gone != nil {
		t.Error("expected account to be deleted")
	}
}
