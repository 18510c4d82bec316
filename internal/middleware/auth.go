// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/session"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// StoreKey is the context key for the client's *auth.SessionStore.
	StoreKey contextKey = "session_store"
)

// LoadSession resolves the client's SessionStore (issuing a client cookie
// if needed) and stores it in the request context. Downstream handlers
// access it via StoreFromCtx(). It does NOT enforce authentication.
func LoadSession(manager *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store, err := manager.Resolve(r.Context(), w, r)
			if err != nil {
				slog.Error("resolve session", "error", err)
				writeError(w, http.StatusInternalServerError, auth.Message(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithStore(r.Context(), store)))
		})
	}
}

// ContextWithStore returns a copy of ctx carrying store.
func ContextWithStore(ctx context.Context, store *auth.SessionStore) context.Context {
	return context.WithValue(ctx, StoreKey, store)
}

// StoreFromCtx extracts the client's SessionStore from the request context.
// Returns nil if LoadSession has not run.
func StoreFromCtx(ctx context.Context) *auth.SessionStore {
	store, _ := ctx.Value(StoreKey).(*auth.SessionStore)
	return store
}

// RequireAuth returns 401 unless the client has a live session. A login
// waiting for its two-factor code does not count.
// Must be applied after LoadSession in the middleware chain.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := StoreFromCtx(r.Context())
		if store == nil || !store.Snapshot().IsAuthenticated() {
			writeError(w, http.StatusUnauthorized, auth.Message(auth.ErrNoActiveSession))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAdmin returns 401 without a live session and 403 if the session
// is not an admin's. Must be applied after LoadSession.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := StoreFromCtx(r.Context())
		if store == nil {
			writeError(w, http.StatusUnauthorized, auth.Message(auth.ErrNoActiveSession))
			return
		}
		snap := store.Snapshot()
		switch {
		case !snap.IsAuthenticated():
			writeError(w, http.StatusUnauthorized, auth.Message(auth.ErrNoActiveSession))
			return
		case !snap.IsAdmin():
			writeError(w, http.StatusForbidden, auth.Message(auth.ErrNotAdmin))
			return
		}

		next.ServeHTTP(w, r)
	})
}
