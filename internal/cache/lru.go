// Package cache provides the assessment and counter caches.
package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edumetrics/kestrel/internal/domain"
	lru "github.com/hashicorp/golang-lru"
)

// ErrTenantRequired is returned when a call carries no tenant.
var ErrTenantRequired = errors.New("cache: tenant id is required")

const (
	defaultLocalSize = 10000

	// maxCounters bounds the rate-limit windows kept in memory; the least
	// recently used tenant window is dropped first.
	maxCounters = 4096
)

// LRUCache keeps entries in process with a TTL per entry. It is the
// community tier cache and the L1 of the two-phase cache.
type LRUCache struct {
	entries  *lru.Cache
	capacity int

	counterMu sync.Mutex
	counters  *lru.Cache

	hits   atomic.Uint64
	misses atomic.Uint64
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

type window struct {
	count     int64
	expiresAt time.Time
}

// NewLRUCache creates an LRU holding at most maxSize entries.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = defaultLocalSize
	}
	// lru.New only fails for non-positive sizes.
	entries, _ := lru.New(maxSize)
	counters, _ := lru.New(maxCounters)
	return &LRUCache{
		entries:  entries,
		capacity: maxSize,
		counters: counters,
	}
}

func scoped(tenantID, key string) (string, error) {
	if tenantID == "" {
		return "", ErrTenantRequired
	}
	return tenantID + "/" + key, nil
}

// Get returns nil, nil for missing and expired keys.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	k, err := scoped(tenantID, key)
	if err != nil {
		return nil, err
	}

	v, ok := c.entries.Get(k)
	if !ok {
		c.misses.Add(1)
		return nil, nil
	}
	e := v.(*entry)
	if time.Now().After(e.expiresAt) {
		c.entries.Remove(k)
		c.misses.Add(1)
		return nil, nil
	}

	c.hits.Add(1)
	return e.value, nil
}

// Set stores value until ttl elapses or it is evicted.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	k, err := scoped(tenantID, key)
	if err != nil {
		return err
	}
	c.entries.Add(k, &entry{value: value, expiresAt: time.Now().Add(ttl)})
	return nil
}

// Delete removes key if present.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	k, err := scoped(tenantID, key)
	if err != nil {
		return err
	}
	c.entries.Remove(k)
	return nil
}

// GetAssessment returns a cached assessment or nil.
func (c *LRUCache) GetAssessment(ctx context.Context, tenantID string, key string) (*domain.Assessment, error) {
	return getAssessment(ctx, c, tenantID, key)
}

// SetAssessment caches an assessment.
func (c *LRUCache) SetAssessment(ctx context.Context, tenantID string, key string, a *domain.Assessment, ttl time.Duration) error {
	return setAssessment(ctx, c, tenantID, key, a, ttl)
}

// IncrementCounter counts within a fixed window that starts on the first
// increment after the previous window expired.
func (c *LRUCache) IncrementCounter(ctx context.Context, tenantID string, key string, span time.Duration) (int64, error) {
	k, err := scoped(tenantID, key)
	if err != nil {
		return 0, err
	}

	c.counterMu.Lock()
	defer c.counterMu.Unlock()

	now := time.Now()
	if v, ok := c.counters.Get(k); ok {
		w := v.(*window)
		if !now.After(w.expiresAt) {
			w.count++
			return w.count, nil
		}
	}

	c.counters.Add(k, &window{count: 1, expiresAt: now.Add(span)})
	return 1, nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry and counter.
func (c *LRUCache) Close() error {
	c.entries.Purge()
	c.counters.Purge()
	return nil
}

// Stats reports occupancy and hit counts since creation.
func (c *LRUCache) Stats() Stats {
	return Stats{
		Size:     c.entries.Len(),
		Capacity: c.capacity,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}
