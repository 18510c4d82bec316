// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router sets up all HTTP routes and middleware chains for the
// storefront auth API. Routes are organized into public auth endpoints,
// session-bound account endpoints and the admin group.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/session"
)

// Options tunes the middleware stacks.
type Options struct {
	// SecureCookies marks the CSRF cookie Secure (HTTPS deployments).
	SecureCookies bool

	// LoginLimiter throttles the credential endpoints. Nil disables it.
	LoginLimiter *middleware.RateLimiter
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(manager *session.Manager, authH *handlers.Auth, opts Options) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)

	// Health check: no session, no CSRF.
	r.Get("/health", healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewCSRF(opts.SecureCookies))
		r.Use(middleware.LoadSession(manager))

		r.Route("/auth", func(r chi.Router) {
			r.Get("/session", authH.Session)
			r.Post("/logout", authH.Logout)

			// Credential checks, throttled per address and per account.
			r.Group(func(r chi.Router) {
				if opts.LoginLimiter != nil {
					r.Use(opts.LoginLimiter.Middleware)
				}
				r.Post("/login", authH.Login)
				r.Post("/admin/login", authH.AdminLogin)
				r.Post("/signup", authH.Signup)
				r.Post("/social/{provider}", authH.SocialLogin)
				r.Post("/password/forgot", authH.ForgotPassword)
				r.Post("/password/reset", authH.ResetPassword)
				r.Post("/2fa/verify", authH.VerifyTwoFactor)
			})

			// Account settings of the signed-in visitor.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)
				r.Post("/2fa/enable", authH.EnableTwoFactor)
				r.Post("/2fa/disable", authH.DisableTwoFactor)
				r.Post("/email/send", authH.SendVerificationEmail)
				r.Post("/email/verify", authH.VerifyEmail)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Post("/password", authH.ChangeAdminPassword)
		})
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
