// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storefront/internal/models"
)

// ErrTokenInvalid is returned by Consume for unknown, used, expired or
// wrong-purpose tokens.
var ErrTokenInvalid = errors.New("token invalid or expired")

// tokenBytes is the entropy of a mailed token.
const tokenBytes = 32

// TokenStore handles single-use account tokens (password reset, email
// verification). Plaintext tokens are returned once by Create and never
// stored.
type TokenStore struct {
	db *sql.DB
}

// NewTokenStore creates a new TokenStore with the given database connection.
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

// HashToken returns the hex SHA-256 under which a token is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create issues a token for accountID valid for ttl and returns its
// plaintext. Earlier unused tokens with the same purpose are revoked.
func (s *TokenStore) Create(ctx context.Context, accountID uuid.UUID, purpose models.TokenPurpose, ttl time.Duration) (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("create token: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE account_tokens SET used_at = NOW()
		WHERE account_id = $1 AND purpose = $2 AND used_at IS NULL
	`, accountID, purpose); err != nil {
		return "", fmt.Errorf("revoke tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO account_tokens (account_id, purpose, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, accountID, purpose, HashToken(token), time.Now().Add(ttl)); err != nil {
		return "", fmt.Errorf("insert token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("create token: %w", err)
	}
	return token, nil
}

// Consume redeems token for purpose and returns the owning account. A
// token can be consumed once. When owner is valid only that account's
// token matches. apply, if not nil, runs before the token is marked used;
// if it fails the token stays usable.
func (s *TokenStore) Consume(ctx context.Context, token string, purpose models.TokenPurpose, owner uuid.NullUUID, apply func(ctx context.Context, accountID uuid.UUID) error) (uuid.UUID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume token: %w", err)
	}
	defer tx.Rollback()

	var accountID uuid.UUID
	err = tx.QueryRowContext(ctx, `
		UPDATE account_tokens SET used_at = NOW()
		WHERE token_hash = $1 AND purpose = $2 AND used_at IS NULL AND expires_at > NOW()
		  AND ($3::uuid IS NULL OR account_id = $3)
		RETURNING account_id
	`, HashToken(token), purpose, owner).Scan(&accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrTokenInvalid
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume token: %w", err)
	}

	if apply != nil {
		if err := apply(ctx, accountID); err != nil {
			return uuid.Nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("consume token: %w", err)
	}
	return accountID, nil
}

// DeleteExpired removes tokens that can no longer be redeemed and returns
// how many were deleted.
func (s *TokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM account_tokens WHERE used_at IS NOT NULL OR expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return res.RowsAffected()
}
