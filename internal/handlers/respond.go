// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"storefront/internal/auth"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 64 << 10

// genericMessage is shown for failures outside the auth vocabulary.
const genericMessage = "Something went wrong. Please try again."

// writeJSON sends v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError sends {"error": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads the request body into dst. An empty body leaves dst
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// statusFor maps an auth error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTwoFactorRequired),
		errors.Is(err, auth.ErrInvalidTwoFactorCode),
		errors.Is(err, auth.ErrIncorrectPassword),
		errors.Is(err, auth.ErrNoActiveSession):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrUnsupportedProvider),
		errors.Is(err, auth.ErrInvalidResetToken):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrOperationPending),
		errors.Is(err, auth.ErrAccountExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeAuthError sends the display message for err with its status. A
// required second factor is flagged so the client can show the code form;
// a rejected signup password carries the strength meter.
func writeAuthError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", "error", err, "path", r.URL.Path)
	}
	body := map[string]any{"error": auth.Message(err)}
	if errors.Is(err, auth.ErrTwoFactorRequired) {
		body["two_factor_required"] = true
	}
	var weak *auth.StrengthError
	if errors.As(err, &weak) {
		body["password_strength"] = weak.Strength
	}
	writeJSON(w, status, body)
}
