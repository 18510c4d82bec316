// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers implements the storefront's JSON auth API. Every
// handler works on the client's SessionStore, which middleware.LoadSession
// puts in the request context.
package handlers

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"storefront/internal/auth"
	"storefront/internal/middleware"
)

// defaultQRSize is the edge length in pixels of enrollment QR codes.
const defaultQRSize = 256

// Auth groups all authentication-related HTTP handlers.
type Auth struct {
	qrSize int
}

// NewAuth creates a new Auth handler group.
func NewAuth() *Auth {
	return &Auth{qrSize: defaultQRSize}
}

// userResponse is the body of every call that yields a session.
type userResponse struct {
	User *auth.Session `json:"user"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// sessionResponse is the body of GET /api/auth/session.
type sessionResponse struct {
	auth.Snapshot
	Authenticated     bool   `json:"authenticated"`
	Admin             bool   `json:"admin"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	CSRFToken         string `json:"csrf_token,omitempty"`
}

// enableResponse is the body of POST /api/auth/2fa/enable. Enrollment and
// QRCode are set only when the backend provisioned a new secret.
type enableResponse struct {
	User       *auth.Session    `json:"user"`
	Enrollment *auth.Enrollment `json:"enrollment,omitempty"`
	QRCode     string           `json:"qr_code,omitempty"`
}

// storeFor returns the client's SessionStore or writes a 500.
func storeFor(w http.ResponseWriter, r *http.Request) *auth.SessionStore {
	store := middleware.StoreFromCtx(r.Context())
	if store == nil {
		slog.Error("no session store in context", "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, genericMessage)
	}
	return store
}

// bind decodes the request body into dst and runs validate. It writes a
// 400 and returns false on the first problem.
func bind(w http.ResponseWriter, r *http.Request, dst any, validate func() string) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return false
	}
	if validate == nil {
		return true
	}
	if msg := validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

// Session reports the client's current auth state.
func (a *Auth) Session(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r)
	if store == nil {
		return
	}
	snap := store.Snapshot()
	writeJSON(w, http.StatusOK, sessionResponse{
		Snapshot:          snap,
		Authenticated:     snap.IsAuthenticated(),
		Admin:             snap.IsAdmin(),
		TwoFactorRequired: snap.RequiresTwoFactor(),
		CSRFToken:         middleware.CSRFTokenFromCtx(r.Context()),
	})
}

type loginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	RememberMe    bool   `json:"remember_me"`
	TwoFactorCode string `json:"two_factor_code"`
}

// Login signs a customer (or admin) in.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r)
	if store == nil {
		return
	}
	var req loginRequest
	if !bind(w, r, &req, func() string {
		return firstError(validateEmail(req.Email), validatePassword(req.Password))
	}) {
		return
	}

	sess, err := store.Login(r.Context(), req.Email, req.Password, req.RememberMe, strings.TrimSpace(req.TwoFactorCode))
	if err != nil {
		writeAuthError(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: sess})
}

type adminLoginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"two_factor_code"`
}

// AdminLogin signs an admin in. Customer accounts are rejected as
// invalid credentials.
func (a *Auth) AdminLogin(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r)
	if store == nil {
		return
	}
	var req adminLoginRequest
	if !bind(w, r, &req, func() string {
		return firstError(validateEmail(req.Email), validatePassword(req.Password))
	}) {
		return
	}

	sess, err := store.AdminLogin(r.Context(), req.Email, req.Password, strings.TrimSpace(req.TwoFactorCode))
	if err != nil {
		writeAuthError(w, r, "admin login", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: sess})
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup creates an account and signs it in.
func (a *Auth) Signup(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r)
	if store == nil {
		return
	}
	var req signupRequest
	if !bind(w, r, &req, func() string {
		return firstError(validateName(req.Name), validateEmail(req.Email), validatePassword(req.Password))
	}) {
		return
	}

	sess, err := store.Signup(r.Context(), strings.TrimSpace(req.Name), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, r, "signup", err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{User: sess})
}

// Logout ends the session. The client is anonymous afterwards even when
// the persisted token could not be removed.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r)
	if store == nil {
		return
	}
	if err := store.Logout(r.Context()); err != nil {
		writeAuthError(w, r, "logout", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "logged_out"})
}

// SocialLogin signs in through the provider named in the URL.
func (a *Auth) SocialLogin(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r)
	if store == nil {
		return
	}
	provider, err := auth.ParseProvider(strings.ToLower(chi.URLParam(r, "provider")))
	if err != nil {
		writeAuthError(w, r, "social login", err)
		return
	}

	sess, err := store.SocialLogin(r.Context(), provider)
	if err != nil {
		writeAuthError(w, r, "social login", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: sess})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword sends reset instructions. The answer is the same whether
// or not the address has an account.
func (a *Auth) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r)
	if store == nil {
		return
	}
	var req forgotPasswordRequest
	if !bind(w, r, &req, func() string { return validateEmail(req.Email) }) {
		return
	}

	if err := store.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeAuthError(w, r, "password reset request", err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "sent"})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword redeems a reset token.
func (a *Auth) ResetPassword(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r)
	if store == nil {
		return
	}
	var req resetPasswordRequest
	if !bind(w, r, &req, func() string {
		return firstError(validateToken(req.Token), validatePassword(req.Password))
	}) {
		return
	}

	if err := store.ResetPassword(r.Context(), strings.TrimSpace(req.Token), req.Password); err != nil {
		writeAuthError(w, r, "password reset", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "password_reset"})
}

type codeRequest struct {
	Code string `json:"code"`
}

// VerifyTwoFactor completes a login waiting for its second factor.
func (a *Auth) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r)
	if store == nil {
		return
	}
	var req codeRequest
	if !bind(w, r, &req, func() string {
		if strings.TrimSpace(req.Code) == "" {
			return "Verification code is required."
		}
		return ""
	}) {
		return
	}

	sess, err := store.VerifyTwoFactor(r.Context(), strings.TrimSpace(req.Code))
	if err != nil {
		writeAuthError(w, r, "two-factor verification", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: sess})
}

type enableTwoFactorRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// EnableTwoFactor turns on the second factor. When the backend enrolls a
// new TOTP secret the response carries it with a base64 PNG QR code of
// its otpauth URL.
func (a *Auth) EnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r)
	if store == nil {
		return
	}
	var req enableTwoFactorRequest
	if !bind(w, r, &req, func() string { return validatePhone(req.PhoneNumber) }) {
		return
	}

	sess, enrollment, err := store.EnableTwoFactor(r.Context(), strings.TrimSpace(req.PhoneNumber))
	if err != nil {
		writeAuthError(w, r, "enable two-factor", err)
		return
	}

	resp := enableResponse{User: sess, Enrollment: enrollment}
	if enrollment != nil && enrollment.URL != "" {
		png, err := qrcode.Encode(enrollment.URL, qrcode.Medium, a.qrSize)
		if err != nil {
			// The factor is already on; the secret is still usable by hand.
			slog.Error("qr code generation failed", "error", err)
		} else {
			resp.QRCode = base64.StdEncoding.EncodeToString(png)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// DisableTwoFactor turns off the second factor.
func (a *Auth) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r)
	if store == nil {
		return
	}
	sess, err := store.DisableTwoFactor(r.Context())
	if err != nil {
		writeAuthError(w, r, "disable two-factor", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: sess})
}

// SendVerificationEmail mails a verification link to the session's address.
func (a *Auth) SendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r)
	if store == nil {
		return
	}
	if err := store.SendVerificationEmail(r.Context()); err != nil {
		writeAuthError(w, r, "send verification email", err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "sent"})
}

type tokenRequest struct {
	Token string `json:"token"`
}

// VerifyEmail confirms the session's address.
func (a *Auth) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r)
	if store == nil {
		return
	}
	var req tokenRequest
	if !bind(w, r, &req, func() string { return validateToken(req.Token) }) {
		return
	}

	sess, err := store.VerifyEmail(r.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		writeAuthError(w, r, "verify email", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: sess})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangeAdminPassword replaces the signed-in admin's password.
func (a *Auth) ChangeAdminPassword(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r)
	if store == nil {
		return
	}
	var req changePasswordRequest
	if !bind(w, r, &req, func() string {
		if req.CurrentPassword == "" {
			return "Current password is required."
		}
		return validatePassword(req.NewPassword)
	}) {
		return
	}

	if err := store.ChangeAdminPassword(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		writeAuthError(w, r, "change admin password", err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "password_changed"})
}
