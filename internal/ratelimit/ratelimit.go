// Package ratelimit provides per-tenant fixed-window request limits.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/edumetrics/kestrel/internal/domain"
)

const counterKey = "ratelimit"

// Limiter counts requests per tenant on the shared cache, so limits hold
// across instances when the cache is Redis.
type Limiter struct {
	cache  domain.Cache
	limit  int64
	window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	// RetryAfter is set when the request was rejected.
	RetryAfter time.Duration
}

// New creates a limiter. A non-positive limit disables limiting.
func New(cache domain.Cache, cfg domain.RateLimitConfig) *Limiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		cache:  cache,
		limit:  int64(cfg.Requests),
		window: window,
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.cache != nil && l.limit > 0
}

// Allow records one request for tenantID and reports whether it fits in
// the current window.
func (l *Limiter) Allow(ctx context.Context, tenantID string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	if tenantID == "" {
		return Decision{}, fmt.Errorf("tenantID is required")
	}

	count, err := l.cache.IncrementCounter(ctx, tenantID, counterKey, l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to increment rate counter: %w", err)
	}

	d := Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: max(l.limit-count, 0),
	}
	if !d.Allowed {
		d.RetryAfter = l.window
	}
	return d, nil
}
