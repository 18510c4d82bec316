// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package session gives every browser client its own auth.SessionStore.
// Clients are identified by a random id in a long-lived cookie; their
// remembered tokens live in Valkey (or memory) under that id.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"storefront/internal/auth"
)

const (
	// CookieName is the name of the client cookie sent to the browser.
	CookieName = "sf_client"

	// CookieMaxAge is how long the browser keeps the client cookie.
	CookieMaxAge = 365 * 24 * time.Hour

	// DefaultIdleTTL is how long an unused SessionStore stays in memory.
	DefaultIdleTTL = 30 * time.Minute

	// idLength is the byte length of the random client ID (32 bytes = 64 hex chars).
	idLength = 32
)

// client is one live SessionStore and the time it was last used.
type client struct {
	store    *auth.SessionStore
	lastSeen time.Time
}

// Manager maps client cookies to SessionStores. A store is built the first
// time a client is seen (or after it was evicted) and restores the
// client's remembered session from storage.
type Manager struct {
	storage    StorageFactory
	backend    auth.Backend
	storeOpts  []auth.Option
	idleTTL    time.Duration
	secure     bool
	now        func() time.Time

	mu      sync.Mutex
	clients map[string]*client

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager creates a manager. Stores share backend and opts; each gets
// its own auth.Storage from the factory. It starts a background goroutine that
// evicts stores unused for idleTTL; call Stop to end it.
func NewManager(storage StorageFactory, backend auth.Backend, idleTTL time.Duration, secure bool, opts ...auth.Option) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	m := &Manager{
		storage:    storage,
		backend:    backend,
		storeOpts:  opts,
		idleTTL:    idleTTL,
		secure:     secure,
		now:        time.Now,
		clients:    make(map[string]*client),
		stopCh:     make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(sweepInterval(idleTTL))
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.stopCh:
				return
			}
		}
	}()

	return m
}

func sweepInterval(idleTTL time.Duration) time.Duration {
	if d := idleTTL / 2; d > time.Second {
		return d
	}
	return time.Second
}

// Stop terminates the background eviction goroutine. It is safe to call
// more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Resolve returns the SessionStore of the client making r, setting a new
// client cookie on w when the request has none. The store's remembered
// session is restored before it is returned.
func (m *Manager) Resolve(ctx context.Context, w http.ResponseWriter, r *http.Request) (*auth.SessionStore, error) {
	id := ""
	if cookie, err := r.Cookie(CookieName); err == nil && validID(cookie.Value) {
		id = cookie.Value
	}
	if id == "" {
		var err error
		if id, err = generateID(); err != nil {
			return nil, fmt.Errorf("session resolve: %w", err)
		}
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			Secure:   m.secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(CookieMaxAge.Seconds()),
		})
	}

	store := m.store(id)
	// Restore runs once per store; a client that disconnects mid-request
	// must not cancel it for later ones.
	if err := store.Restore(context.WithoutCancel(ctx)); err != nil {
		// The store has logged out; the request goes on anonymous.
		slog.Warn("session restore failed", "error", err)
	}
	return store, nil
}

// store returns the live store for id, creating it if needed.
func (m *Manager) store(id string) *auth.SessionStore {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[id]
	if !ok {
		c = &client{store: auth.NewSessionStore(m.storage.Storage(id), m.backend, m.storeOpts...)}
		m.clients[id] = c
	}
	c.lastSeen = m.now()
	return c.store
}

// Len returns the number of live stores.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// sweep evicts stores idle for longer than idleTTL and releases their
// storage. A remembered session comes back from storage on the next
// request.
func (m *Manager) sweep() {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.clients {
		if c.lastSeen.Before(cutoff) {
			delete(m.clients, id)
			m.storage.Release(id)
		}
	}
}

// generateID creates a cryptographically random client identifier.
func generateID() (string, error) {
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validID reports whether v looks like an id produced by generateID.
func validID(v string) bool {
	if len(v) != idLength*2 {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}
