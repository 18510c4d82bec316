// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/internal/auth"
)

const (
	// DefaultTTL is how long a remembered token lives in Valkey. Every
	// write resets it.
	DefaultTTL = 30 * 24 * time.Hour

	// keyPrefix namespaces client keys in Valkey to avoid collisions.
	keyPrefix = "storefront:client:"
)

// ValkeyStorage is an auth.Storage holding one client's keys in Valkey.
// Keys are stored as storefront:client:<clientID>:<key>.
type ValkeyStorage struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewValkeyStorage creates storage for clientID. A ttl <= 0 uses DefaultTTL.
func NewValkeyStorage(client redis.Cmdable, clientID string, ttl time.Duration) *ValkeyStorage {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ValkeyStorage{
		client: client,
		prefix: keyPrefix + clientID + ":",
		ttl:    ttl,
	}
}

// Get returns the value under key; ok is false when the key is absent or
// expired.
func (s *ValkeyStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage get %s: %w", key, err)
	}
	return v, true, nil
}

// Set writes value under key and resets its TTL.
func (s *ValkeyStorage) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("storage set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (s *ValkeyStorage) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("storage remove %s: %w", key, err)
	}
	return nil
}

// StorageFactory hands out the Storage of each browser client.
type StorageFactory interface {
	Storage(clientID string) auth.Storage
	// Release is called once the client's SessionStore has been evicted.
	Release(clientID string)
}

type valkeyFactory struct {
	client redis.Cmdable
	ttl    time.Duration
}

// ValkeyFactory keeps every client's keys in Valkey, so remembered
// sessions survive restarts and are shared between instances.
func ValkeyFactory(client redis.Cmdable, ttl time.Duration) StorageFactory {
	return valkeyFactory{client: client, ttl: ttl}
}

func (f valkeyFactory) Storage(clientID string) auth.Storage {
	return NewValkeyStorage(f.client, clientID, f.ttl)
}

// Release is a no-op; the keys expire on their own.
func (valkeyFactory) Release(string) {}

// MemoryStorages keeps every client's keys in process memory. A client
// with a remembered session keeps its storage after its SessionStore is
// evicted, so it is restored on its next request. Nothing survives a
// restart.
type MemoryStorages struct {
	mu      sync.Mutex
	storage map[string]*auth.MemoryStorage
}

// MemoryFactory returns an empty MemoryStorages.
func MemoryFactory() *MemoryStorages {
	return &MemoryStorages{storage: make(map[string]*auth.MemoryStorage)}
}

func (f *MemoryStorages) Storage(clientID string) auth.Storage {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.storage[clientID]
	if !ok {
		s = auth.NewMemoryStorage()
		f.storage[clientID] = s
	}
	return s
}

// Release drops the client's storage when it holds nothing.
func (f *MemoryStorages) Release(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.storage[clientID]; ok && s.Len() == 0 {
		delete(f.storage, clientID)
	}
}

// Len returns the number of clients with storage.
func (f *MemoryStorages) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.storage)
}
