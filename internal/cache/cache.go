// Package cache provides the short-lived key/value store behind HTTP
// idempotency keys. The memory implementation serves single-instance
// deployments and tests; Redis serves replicated deployments.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache stores opaque values with a time to live.
type Cache interface {
	// Get returns ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// CacheError is a sentinel error type.
type CacheError string

func (e CacheError) Error() string { return string(e) }

// ErrCacheMiss indicates the key was not found.
const ErrCacheMiss CacheError = "cache miss"

// Driver names a cache implementation.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

// Config selects and parameterises a cache.
type Config struct {
	Driver        Driver
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// Open returns the cache described by cfg. Redis connectivity is checked
// with a PING.
func Open(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryCache(), nil
	case DriverRedis:
		return NewRedisCache(ctx, RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB, KeyPrefix: cfg.KeyPrefix})
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
