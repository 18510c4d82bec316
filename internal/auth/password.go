// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package auth

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MinPasswordLength is the shortest password the policy accepts.
	MinPasswordLength = 8

	// MinSignupScore is the lowest PasswordStrength.Score accepted at
	// signup.
	MinSignupScore = 3

	// passwordSpecials is the set of characters that count as "special".
	passwordSpecials = `!@#$%^&*(),.?":{}|<>`
)

// PasswordStrength is the per-criterion breakdown shown by the signup
// strength meter. Score counts the satisfied criteria (0..5).
type PasswordStrength struct {
	HasMinLength bool `json:"has_min_length"`
	HasUpperCase bool `json:"has_upper_case"`
	HasLowerCase bool `json:"has_lower_case"`
	HasNumber    bool `json:"has_number"`
	HasSpecial   bool `json:"has_special_char"`
	Score        int  `json:"score"`
}

// MeasurePassword evaluates password against every criterion.
func MeasurePassword(password string) PasswordStrength {
	s := PasswordStrength{
		HasMinLength: utf8.RuneCountInString(password) >= MinPasswordLength,
	}
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			s.HasUpperCase = true
		case r >= 'a' && r <= 'z':
			s.HasLowerCase = true
		case r >= '0' && r <= '9':
			s.HasNumber = true
		case strings.ContainsRune(passwordSpecials, r):
			s.HasSpecial = true
		}
	}
	for _, ok := range []bool{s.HasMinLength, s.HasUpperCase, s.HasLowerCase, s.HasNumber, s.HasSpecial} {
		if ok {
			s.Score++
		}
	}
	return s
}

// Strong reports whether every criterion is met.
func (s PasswordStrength) Strong() bool {
	return s.Score == 5
}

// Acceptable reports whether the score is high enough to sign up with.
func (s PasswordStrength) Acceptable() bool {
	return s.Score >= MinSignupScore
}

// StrengthError rejects a signup password and carries the meter reading.
// It matches ErrWeakPassword with errors.Is.
type StrengthError struct {
	Strength PasswordStrength
}

func (e *StrengthError) Error() string {
	return fmt.Sprintf("%s: score %d, need %d", ErrWeakPassword, e.Strength.Score, MinSignupScore)
}

func (e *StrengthError) Unwrap() error { return ErrWeakPassword }

// CheckPasswordStrength returns ErrWeakPassword, wrapped with the list of
// unmet requirements, unless password satisfies the whole policy.
func CheckPasswordStrength(password string) error {
	s := MeasurePassword(password)
	if s.Strong() {
		return nil
	}

	var missing []string
	if !s.HasMinLength {
		missing = append(missing, fmt.Sprintf("at least %d characters", MinPasswordLength))
	}
	if !s.HasUpperCase {
		missing = append(missing, "an uppercase letter")
	}
	if !s.HasLowerCase {
		missing = append(missing, "a lowercase letter")
	}
	if !s.HasNumber {
		missing = append(missing, "a number")
	}
	if !s.HasSpecial {
		missing = append(missing, "a special character")
	}
	return fmt.Errorf("%w: needs %s", ErrWeakPassword, strings.Join(missing, ", "))
}
