// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// peekLimit is how much of a credential request body is read to find the
// account it targets.
const peekLimit = 64 << 10

// RateLimiter throttles credential attempts over a sliding window. Every
// attempt is charged to the client address and, when the JSON body names
// an email, to that account too; a request is refused once either budget
// is spent. Spreading guesses for one account over many addresses hits
// the account budget.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string][]time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter allows limit attempts per window for each address and
// each account. It starts a goroutine that drops idle buckets; call Stop
// to end it.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	rl := &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string][]time.Time),
		stopCh:  make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup()
			case <-rl.stopCh:
				return
			}
		}
	}()

	return rl
}

// Stop terminates the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// take charges one attempt to every key. Nothing is charged when any key
// is over budget; the returned duration is then how long until all of
// them have room again.
func (rl *RateLimiter) take(keys ...string) (time.Duration, bool) {
	now := rl.now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	var wait time.Duration
	for _, key := range keys {
		live := prune(rl.buckets[key], cutoff)
		rl.buckets[key] = live
		if len(live) >= rl.limit {
			// The oldest attempts leave the window first.
			if d := live[len(live)-rl.limit].Add(rl.window).Sub(now); d > wait {
				wait = d
			}
		}
	}
	if wait > 0 {
		return wait, false
	}
	for _, key := range keys {
		rl.buckets[key] = append(rl.buckets[key], now)
	}
	return 0, true
}

// prune drops timestamps at or before cutoff. ts is in ascending order.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

// cleanup removes buckets with no attempt inside the window.
func (rl *RateLimiter) cleanup() {
	cutoff := rl.now().Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, ts := range rl.buckets {
		if len(prune(ts, cutoff)) == 0 {
			delete(rl.buckets, key)
		}
	}
}

// Middleware refuses over-budget credential requests with 429 and a
// Retry-After header.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		keys := []string{"ip:" + ip}
		email := peekEmail(r)
		if email != "" {
			keys = append(keys, "account:"+email)
		}

		if wait, ok := rl.take(keys...); !ok {
			slog.Warn("credential attempts throttled", "ip", ip, "path", r.URL.Path, "per_account", email != "")
			w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(wait)))
			writeError(w, http.StatusTooManyRequests, "Too many attempts. Please wait a moment and try again.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// peekEmail returns the normalized "email" field of a JSON body, leaving
// the body readable for the handler.
func peekEmail(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	head, err := io.ReadAll(io.LimitReader(r.Body, peekLimit))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	if err != nil {
		return ""
	}

	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(head, &body) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

// clientIP returns the address of the client, preferring the first hop of
// X-Forwarded-For and then X-Real-IP when they hold a valid IP.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
