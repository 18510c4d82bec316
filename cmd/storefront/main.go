// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package main is the entry point for the storefront auth server.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/accounts"
	"storefront/internal/auth"
	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/router"
	"storefront/internal/session"
	"storefront/internal/store"
)

// tokenPurgeInterval is how often expired reset and verification tokens
// are deleted.
const tokenPurgeInterval = time.Hour

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"auth_backend", cfg.AuthBackend,
		"session_storage", cfg.SessionStorage,
	)

	// Credential authority: the demo allow-list or the account database.
	var backend auth.Backend
	var purger *accounts.Backend
	if cfg.NeedsDatabase() {
		db := connectDatabase(cfg)
		defer db.Close()

		purger = accounts.NewBackend(
			store.NewAccountStore(db),
			store.NewTokenStore(db),
			accounts.LogMailer{Logger: logger},
			accounts.Config{BaseURL: cfg.BaseURL},
		)
		backend = purger
	} else {
		slog.Warn("using the demo account allow-list", "delay", cfg.MockDelay)
		mock := auth.NewMockBackend(cfg.MockDelay)
		mock.Logger = logger
		backend = mock
	}

	// Per-client storage for remembered sessions.
	var storages session.StorageFactory = session.MemoryFactory()
	if cfg.NeedsValkey() {
		valkeyClient, err := cache.ConnectValkey(cfg.ValkeyAddr(), cfg.ValkeyPassword)
		if err != nil {
			slog.Error("failed to connect to valkey", "error", err)
			os.Exit(1)
		}
		defer valkeyClient.Close()
		storages = session.ValkeyFactory(valkeyClient, session.DefaultTTL)
	}

	// Signed tokens when a key is configured, plain JSON otherwise.
	storeOpts := []auth.Option{auth.WithLogger(logger)}
	if cfg.SigningKey != "" {
		codec, err := auth.NewJWTCodec([]byte(cfg.SigningKey), "storefront")
		if err != nil {
			slog.Error("failed to initialize session codec", "error", err)
			os.Exit(1)
		}
		storeOpts = append(storeOpts, auth.WithCodec(codec))
	} else {
		slog.Warn("SESSION_SIGNING_KEY not set; remembered sessions are stored unsigned")
	}

	// In production, mark cookies as Secure (HTTPS-only).
	secureCookies := cfg.IsProduction()
	manager := session.NewManager(storages, backend, cfg.SessionIdleTTL, secureCookies, storeOpts...)
	defer manager.Stop()

	opts := router.Options{SecureCookies: secureCookies}
	if cfg.LoginRateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.LoginRateLimit, time.Minute)
		defer limiter.Stop()
		opts.LoginLimiter = limiter
	}

	r := router.New(manager, handlers.NewAuth(), opts)

	// WriteTimeout must cover the mock backend's artificial delay.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if purger != nil {
		go purgeTokens(ctx, purger)
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	<-ctx.Done()
	slog.Info("shutdown signal received")

	// Give active requests up to 30 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}

// connectDatabase opens PostgreSQL, applies migrations and, in development,
// seeds the demo accounts. Any failure is fatal.
func connectDatabase(cfg *config.Config) *sql.DB {
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Seed development data (no-op if the accounts already exist).
	if cfg.IsDev() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := database.Seed(ctx, db); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}
	return db
}

// purgeTokens deletes expired account tokens every tokenPurgeInterval
// until ctx is done.
func purgeTokens(ctx context.Context, b *accounts.Backend) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := b.PurgeExpiredTokens(ctx)
			if err != nil {
				slog.Warn("token purge failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired tokens purged", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
