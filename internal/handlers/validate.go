// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Validation limits for auth form fields.
const (
	maxNameLen     = 100
	maxEmailLen    = 254
	maxPasswordLen = 128
	maxTokenLen    = 512
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// validateEmail checks the shape of an email address and returns the
// first error found.
func validateEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return "Email is required."
	}
	if utf8.RuneCountInString(email) > maxEmailLen {
		return "Email is too long (max 254 characters)."
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return "Please enter a valid email address."
	}
	return ""
}

// validatePassword only requires a value; strength is the session store's
// concern.
func validatePassword(password string) string {
	if password == "" {
		return "Password is required."
	}
	if utf8.RuneCountInString(password) > maxPasswordLen {
		return "Password is too long (max 128 characters)."
	}
	return ""
}

// validateName checks a display name.
func validateName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Name is required."
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "Name is too long (max 100 characters)."
	}
	return ""
}

// validatePhone accepts an optional leading "+" followed by digits, with
// spaces, dashes and parentheses as separators.
func validatePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "Phone number is required."
	}
	digits := 0
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "Please enter a valid phone number."
		}
	}
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return "Please enter a valid phone number."
	}
	return ""
}

// validateToken checks an emailed token is present and plausibly sized.
func validateToken(token string) string {
	if strings.TrimSpace(token) == "" {
		return "Token is required."
	}
	if len(token) > maxTokenLen {
		return "Token is too long."
	}
	return ""
}

// firstError returns the first non-empty message.
func firstError(msgs ...string) string {
	for _, m := range msgs {
		if m != "" {
			return m
		}
	}
	return ""
}
