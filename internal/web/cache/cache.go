// Package cache provides the state cache behind the control API: parameter
// trees, last-known property values, and active-source sets, keyed per
// instrument. Backends are in-memory or Redis.
package cache

import (
	"context"
	"time"
)

// Cache defines the interface for all cache backends
type Cache interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in the cache
	Exists(ctx context.Context, key string) (bool, error)
}

// Config holds common configuration for cache backends
type Config struct {
	// DefaultTTL is the time-to-live applied when Set receives zero
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "gometr:",
	}
}

// ErrCacheMiss is returned when a key is not found in the cache
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	_, ok := err.(ErrCacheMiss)
	return ok
}

// TreeKey is the cache key for an instrument's parameter tree
func TreeKey(instrument string) string {
	return "tree:" + instrument
}

// ValueKey is the cache key for the last-known value of one property path
func ValueKey(instrument, path string) string {
	return "value:" + instrument + ":" + path
}

// SourcesKey is the cache key for an instrument's active source set
func SourcesKey(instrument string) string {
	return "sources:" + instrument
}
