// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
)

const (
	// csrfTokenLength is the byte length of CSRF tokens (32 bytes = 64 hex chars).
	csrfTokenLength = 32

	// CSRFCookieName is the cookie that holds the CSRF token.
	CSRFCookieName = "sf_csrf"

	// CSRFHeaderName is the header the storefront script echoes the token in.
	CSRFHeaderName = "X-CSRF-Token"

	// CSRFRejected is the error body of a request without a matching token.
	CSRFRejected = "Your session has expired. Refresh the page and try again."

	csrfTokenKey contextKey = "csrf_token"
)

// NewCSRF returns double-submit cookie CSRF protection for the JSON API.
// The token lives in a JS-readable cookie and is also returned by the
// session endpoint through the request context. Every request other than
// GET, HEAD and OPTIONS must echo it in the X-CSRF-Token header; a cross
// site form cannot set headers, so form fields are not accepted.
func NewCSRF(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if cookie, err := r.Cookie(CSRFCookieName); err == nil && validCSRFToken(cookie.Value) {
				token = cookie.Value
			}
			if token == "" {
				var err error
				if token, err = generateCSRFToken(); err != nil {
					slog.Error("csrf token generation failed", "error", err)
					writeError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     CSRFCookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: false, // the storefront script reads it
					Secure:   secure,
					SameSite: http.SameSiteStrictMode,
				})
			}
			r = r.WithContext(context.WithValue(r.Context(), csrfTokenKey, token))

			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(r.Header.Get(CSRFHeaderName))) != 1 {
				slog.Warn("csrf token rejected", "method", r.Method, "path", r.URL.Path)
				writeError(w, http.StatusForbidden, CSRFRejected)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CSRFTokenFromCtx returns the token NewCSRF placed in ctx, or "".
func CSRFTokenFromCtx(ctx context.Context) string {
	token, _ := ctx.Value(csrfTokenKey).(string)
	return token
}

func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validCSRFToken reports whether v looks like a token from generateCSRFToken.
func validCSRFToken(v string) bool {
	if len(v) != csrfTokenLength*2 {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}
