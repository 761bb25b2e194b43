// Package cachemanager caches per-tenant read models that are expensive to
// recompute, such as workflow statistics aggregated over the run ledgers.
// Entries expire on a TTL and are invalidated eagerly when a run reaches a
// terminal state, so a stats read right after a workflow settles reflects it.
package cachemanager

import (
	"context"
	"time"
)

// Store is the backing key-value cache. Keys are tenant-scoped strings built
// by TenantCache; values expire after their TTL.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V, ttl time.Duration)
	Invalidate(ctx context.Context, keys ...string)
	Flush(ctx context.Context)
}
