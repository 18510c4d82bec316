// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenCodec turns a Session into the opaque string stored under KeyUser
// and back. Decode returns an error wrapping ErrCorruptToken for anything
// it cannot trust.
type TokenCodec interface {
	Encode(sess Session) (string, error)
	Decode(token string) (*Session, error)
}

// JSONCodec stores the session as plain JSON.
type JSONCodec struct{}

// Encode marshals sess to JSON.
func (JSONCodec) Encode(sess Session) (string, error) {
	b, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return string(b), nil
}

// Decode unmarshals a JSON session.
func (JSONCodec) Decode(token string) (*Session, error) {
	var sess Session
	if err := json.Unmarshal([]byte(token), &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptToken, err)
	}
	if err := validateDecoded(&sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// MinSigningKeyLength is the shortest HS256 key NewJWTCodec accepts.
const MinSigningKeyLength = 32

// JWTCodec stores the session as an HS256-signed JWT so a token edited in
// storage fails to restore.
type JWTCodec struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// sessionClaims is the JWT payload written by JWTCodec.
type sessionClaims struct {
	jwt.RegisteredClaims
	User Session `json:"user"`
}

// NewJWTCodec creates a codec signing with key. The key must be at least
// MinSigningKeyLength bytes.
func NewJWTCodec(key []byte, issuer string) (*JWTCodec, error) {
	if len(key) < MinSigningKeyLength {
		return nil, fmt.Errorf("jwt codec: signing key must be at least %d bytes", MinSigningKeyLength)
	}
	return &JWTCodec{key: key, issuer: issuer, now: time.Now}, nil
}

// Encode signs sess.
func (c *JWTCodec) Encode(sess Session) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   c.issuer,
			Subject:  sess.UserID,
			IssuedAt: jwt.NewNumericDate(c.now()),
		},
		User: sess,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

// Decode verifies the signature and returns the embedded session.
func (c *JWTCodec) Decode(token string) (*Session, error) {
	claims := &sessionClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptToken, err)
	}
	if !parsed.Valid {
		return nil, ErrCorruptToken
	}
	if claims.Subject != claims.User.UserID {
		return nil, fmt.Errorf("%w: subject mismatch", ErrCorruptToken)
	}
	if err := validateDecoded(&claims.User); err != nil {
		return nil, err
	}
	return &claims.User, nil
}

// validateDecoded rejects sessions no login could have produced.
func validateDecoded(sess *Session) error {
	if sess.UserID == "" || sess.Email == "" {
		return fmt.Errorf("%w: missing identity", ErrCorruptToken)
	}
	switch sess.Role {
	case RoleUser, RoleAdmin:
		return nil
	}
	return errors.Join(ErrCorruptToken, fmt.Errorf("unknown role %q", sess.Role))
}
