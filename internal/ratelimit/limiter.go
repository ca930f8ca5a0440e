// Package ratelimit enforces fixed-window request ceilings per identifier.
//
// Counters live behind the Store interface. MemoryStore is process-local
// and therefore only correct for a single instance; RedisStore shares
// counters across instances.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Store counts hits per key inside a fixed window.
type Store interface {
	// Hit records one request for key and returns the count in the current
	// window. A new window starts when the previous one has expired.
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter applies per-call ceilings on top of a Store.
type Limiter struct {
	store Store
}

func New(store Store) *Limiter {
	return &Limiter{store: store}
}

// Allow records a request for identifier and reports whether it is within
// maxRequests for window. Callers must short-circuit when it returns false.
func (l *Limiter) Allow(ctx context.Context, identifier string, maxRequests int, window time.Duration) (bool, error) {
	count, err := l.store.Hit(ctx, identifier, window)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", identifier, err)
	}
	return count <= int64(maxRequests), nil
}
