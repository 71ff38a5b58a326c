package domain

import (
	"context"
	"time"
)

// Cache is a tenant-scoped byte store with expiry. Every key lives inside
// a tenant's namespace; an empty tenantID is an error.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, tenantID string, key string) error

	// GetAssessment returns nil, nil on a miss.
	GetAssessment(ctx context.Context, tenantID string, key string) (*Assessment, error)
	SetAssessment(ctx context.Context, tenantID string, key string, a *Assessment, ttl time.Duration) error

	// IncrementCounter adds one to a fixed window counter and returns the
	// count so far. The window opens on the first increment.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and sizes the cache.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string

	// In-process LRU, used alone for "memory" and as the near layer of
	// the two-phase cache.
	LocalMaxSize int
	LocalTTL     time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase puts the LRU in front of Redis.
	EnableTwoPhase bool
}
