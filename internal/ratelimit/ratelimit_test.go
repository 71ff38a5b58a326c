package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/edumetrics/kestrel/internal/cache"
	"github.com/edumetrics/kestrel/internal/domain"
)

func TestLimiter(t *testing.T) {
	lru := cache.NewLRUCache(100)
	defer lru.Close()

	limiter := New(lru, domain.RateLimitConfig{Requests: 3, Window: time.Minute})
	ctx := context.Background()

	t.Run("WithinLimit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			d, err := limiter.Allow(ctx, "tenant-001")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !d.Allowed {
				t.Fatalf("request %d should be allowed", i+1)
			}
			if d.Remaining != int64(2-i) {
				t.Errorf("request %d: expected remaining %d, got %d", i+1, 2-i, d.Remaining)
			}
		}
	})

	t.Run("OverLimit", func(t *testing.T) {
		d, err := limiter.Allow(ctx, "tenant-001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Allowed {
			t.Error("fourth request should be rejected")
		}
		if d.Remaining != 0 {
			t.Errorf("expected remaining 0, got %d", d.Remaining)
		}
		if d.RetryAfter != time.Minute {
			t.Errorf("expected RetryAfter of one window, got %v", d.RetryAfter)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		d, err := limiter.Allow(ctx, "tenant-002")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Error("other tenants must have their own window")
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if _, err := limiter.Allow(ctx, ""); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})
}

func TestLimiterWindowReset(t *testing.T) {
	lru := cache.NewLRUCache(100)
	defer lru.Close()

	limiter := New(lru, domain.RateLimitConfig{Requests: 1, Window: 20 * time.Millisecond})
	ctx := context.Background()

	if d, _ := limiter.Allow(ctx, "tenant-001"); !d.Allowed {
		t.Fatal("first request should be allowed")
	}
	if d, _ := limiter.Allow(ctx, "tenant-001"); d.Allowed {
		t.Fatal("second request should be rejected")
	}

	time.Sleep(40 * time.Millisecond)

	if d, _ := limiter.Allow(ctx, "tenant-001"); !d.Allowed {
		t.Error("request after window reset should be allowed")
	}
}

func TestLimiterDisabled(t *testing.T) {
	tests := []struct {
		name    string
		limiter *Limiter
	}{
		{"nil", nil},
		{"zero limit", New(cache.NewLRUCache(10), domain.RateLimitConfig{})},
		{"no cache", New(nil, domain.RateLimitConfig{Requests: 1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.limiter.Enabled() {
				t.Error("expected limiter to be disabled")
			}
			d, err := tt.limiter.Allow(context.Background(), "")
			if err != nil || !d.Allowed {
				t.Errorf("disabled limiter must allow everything, got %v %v", d, err)
			}
		})
	}
}
