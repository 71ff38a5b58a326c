package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/edumetrics/kestrel/internal/domain"
)

// Stats describes the in-process layer of a cache.
type Stats struct {
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

// HitRate is hits over lookups, 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// StatsReporter is implemented by caches with an in-process layer.
type StatsReporter interface {
	Stats() Stats
}

// New builds the cache selected by cfg.Type.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "", "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// AssessmentKey identifies the assessment of one version of a student
// record under one method. Editing the record changes updatedAt, so old
// entries are never served.
func AssessmentKey(studentID string, updatedAt time.Time, method string) string {
	return joinKey("assessment", studentID, strconv.FormatInt(updatedAt.UnixNano(), 36), method)
}

// CounterKey is the key of a rate-limit window.
func CounterKey(name string) string {
	return joinKey("counter", name)
}

func joinKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// byteStore is the raw surface the assessment codec sits on.
type byteStore interface {
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
}

func getAssessment(ctx context.Context, s byteStore, tenantID, key string) (*domain.Assessment, error) {
	data, err := s.Get(ctx, tenantID, key)
	if err != nil || data == nil {
		return nil, err
	}

	a := new(domain.Assessment)
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("decode cached assessment %s: %w", key, err)
	}
	return a, nil
}

func setAssessment(ctx context.Context, s byteStore, tenantID, key string, a *domain.Assessment, ttl time.Duration) error {
	if a == nil {
		return fmt.Errorf("cache: nil assessment for %s", key)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode assessment %s: %w", key, err)
	}
	return s.Set(ctx, tenantID, key, data, ttl)
}

// TwoPhaseCache reads through a process-local LRU before Redis, so a
// replica answers repeat lookups without a network round trip.
type TwoPhaseCache struct {
	near *LRUCache
	far  *RedisCache

	// nearTTL caps how long an entry lives in the local layer.
	nearTTL time.Duration
}

// NewTwoPhaseCache connects to Redis and puts an LRU in front of it.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	far, err := NewRedisCache(cfg)
	if err != nil {
		return nil, err
	}

	nearTTL := cfg.LocalTTL
	if nearTTL <= 0 {
		nearTTL = time.Minute
	}

	return &TwoPhaseCache{
		near:    NewLRUCache(cfg.LocalMaxSize),
		far:     far,
		nearTTL: nearTTL,
	}, nil
}

// Get fills the local layer on a Redis hit.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if v, err := c.near.Get(ctx, tenantID, key); err != nil || v != nil {
		return v, err
	}

	v, err := c.far.Get(ctx, tenantID, key)
	if err != nil || v == nil {
		return nil, err
	}
	_ = c.near.Set(ctx, tenantID, key, v, c.nearTTL)
	return v, nil
}

// Set writes both layers. The local copy never outlives the Redis one.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.near.Set(ctx, tenantID, key, value, min(ttl, c.nearTTL)); err != nil {
		return err
	}
	return c.far.Set(ctx, tenantID, key, value, ttl)
}

func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.near.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.far.Delete(ctx, tenantID, key)
}

func (c *TwoPhaseCache) GetAssessment(ctx context.Context, tenantID string, key string) (*domain.Assessment, error) {
	return getAssessment(ctx, c, tenantID, key)
}

func (c *TwoPhaseCache) SetAssessment(ctx context.Context, tenantID string, key string, a *domain.Assessment, ttl time.Duration) error {
	return setAssessment(ctx, c, tenantID, key, a, ttl)
}

// IncrementCounter goes straight to Redis so all replicas share a window.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	return c.far.IncrementCounter(ctx, tenantID, key, window)
}

func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.far.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func (c *TwoPhaseCache) Close() error {
	_ = c.near.Close()
	return c.far.Close()
}

// Stats reports the local layer.
func (c *TwoPhaseCache) Stats() Stats {
	return c.near.Stats()
}
