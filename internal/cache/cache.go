// Package cache provides an advisory key/value cache used by the billing
// engine. Cache failures are never surfaced to callers: a failed read is a
// miss, a failed write or delete is a no-op.
package cache

import (
	"context"
	"time"
)

// Cache is an optional side-channel; every implementation must absorb
// backend failures internally.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores a value with a TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration)
	// Delete removes a single key.
	Delete(ctx context.Context, key string)
	// DeletePrefix removes all keys matching the given prefix.
	DeletePrefix(ctx context.Context, prefix string)
}

// Noop is a Cache that stores nothing; it stands in when no backend is configured.
type Noop struct{}

// Get always reports a miss.
func (Noop) Get(ctx context.Context, key string) (string, bool) { return "", false }

// Set does nothing.
func (Noop) Set(ctx context.Context, key, value string, ttl time.Duration) {}

// Delete does nothing.
func (Noop) Delete(ctx context.Context, key string) {}

// DeletePrefix does nothing.
func (Noop) DeletePrefix(ctx context.Context, prefix string) {}
