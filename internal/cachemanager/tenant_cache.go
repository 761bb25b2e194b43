package cachemanager

import (
	"context"
	"time"
)

// LoadFunc recomputes the cached value for one tenant on a miss.
type LoadFunc[V any] func(ctx context.Context, tenantID string) (V, error)

// TenantCache is a read-through cache keyed by tenant. A Get serves the
// cached value when one is live, otherwise it loads, caches, and returns. An
// Invalidate forces the next Get for that tenant to reload.
type TenantCache[V any] struct {
	store  Store[V]
	load   LoadFunc[V]
	prefix string
	ttl    time.Duration
}

// NewTenantCache builds a tenant cache over a store. prefix namespaces this
// cache's keys within the store.
func NewTenantCache[V any](store Store[V], prefix string, ttl time.Duration, load LoadFunc[V]) *TenantCache[V] {
	return &TenantCache[V]{
		store:  store,
		load:   load,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *TenantCache[V]) key(tenantID string) string {
	return c.prefix + ":" + tenantID
}

// Get returns the tenant's value, loading it on a miss. A load failure is
// returned without caching, so the next Get retries.
func (c *TenantCache[V]) Get(ctx context.Context, tenantID string) (V, error) {
	if value, ok := c.store.Get(ctx, c.key(tenantID)); ok {
		return value, nil
	}

	value, err := c.load(ctx, tenantID)
	if err != nil {
		return value, err
	}
	c.store.Set(ctx, c.key(tenantID), value, c.ttl)
	return value, nil
}

// Invalidate drops the tenant's cached value.
func (c *TenantCache[V]) Invalidate(ctx context.Context, tenantID string) {
	c.store.Invalidate(ctx, c.key(tenantID))
}
