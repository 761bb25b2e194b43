package cachemanager

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/fiberline/switchyard/internal/log"
)

// Memory is an in-process Store over patrickmn/go-cache. useCase names the
// cache in log output so hits and misses from different caches can be told
// apart.
type Memory[V any] struct {
	useCase string
	cache   *gocache.Cache
}

// NewMemory initializes an in-memory store. defaultExpiration applies when a
// Set passes a zero TTL; cleanupInterval is how often expired entries are
// swept out.
func NewMemory[V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *Memory[V] {
	return &Memory[V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Get retrieves a live entry by key.
func (m *Memory[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V

	value, found := m.cache.Get(key)
	if !found {
		return zero, false
	}

	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type assertion when getting value",
			"use_case", m.useCase, "key", key)
		return zero, false
	}

	log.Debug(log.CatCache, "cache hit", "use_case", m.useCase, "key", key)
	return v, true
}

// Set stores a value under a key with a TTL.
func (m *Memory[V]) Set(_ context.Context, key string, value V, ttl time.Duration) {
	m.cache.Set(key, value, ttl)
}

// Invalidate drops the named keys. Missing keys are ignored.
func (m *Memory[V]) Invalidate(_ context.Context, keys ...string) {
	for _, key := range keys {
		m.cache.Delete(key)
	}
	if len(keys) > 0 {
		log.Debug(log.CatCache, "cache invalidated", "use_case", m.useCase, "keys", keys)
	}
}

// Flush drops every entry in the cache.
func (m *Memory[V]) Flush(_ context.Context) {
	m.cache.Flush()
}
