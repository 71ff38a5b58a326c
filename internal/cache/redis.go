package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	redisNamespace   = "kestrel"
	redisDialTimeout = 5 * time.Second
)

// incrWindow increments KEYS[1] and arms its expiry on the first hit of
// a window, so later hits never extend it.
var incrWindow = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return n
`)

// RedisCache stores entries under kestrel:<tenant>:<key>.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache dials cfg.RedisAddr and fails if the server does not
// answer a PING.
func NewRedisCache(cfg domain.CacheConfig) (*RedisCache, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: redisDialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) key(tenantID, key string) (string, error) {
	if tenantID == "" {
		return "", ErrTenantRequired
	}
	return joinKey(redisNamespace, tenantID, key), nil
}

// Get returns nil, nil when the key does not exist.
func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	k, err := c.key(tenantID, key)
	if err != nil {
		return nil, err
	}

	val, err := c.client.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	k, err := c.key(tenantID, key)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, k, value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	k, err := c.key(tenantID, key)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, k).Err()
}

func (c *RedisCache) GetAssessment(ctx context.Context, tenantID string, key string) (*domain.Assessment, error) {
	return getAssessment(ctx, c, tenantID, key)
}

func (c *RedisCache) SetAssessment(ctx context.Context, tenantID string, key string, a *domain.Assessment, ttl time.Duration) error {
	return setAssessment(ctx, c, tenantID, key, a, ttl)
}

// IncrementCounter runs incrWindow so concurrent replicas share one count.
func (c *RedisCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	k, err := c.key(tenantID, CounterKey(key))
	if err != nil {
		return 0, err
	}
	return incrWindow.Run(ctx, c.client, []string{k}, window.Milliseconds()).Int64()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
