package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiter_NilRedis_FailOpen(t *testing.T) {
	l := NewLimiter(nil)
	result, err := l.Check(context.Background(), "test:key", 60, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Error("expected allowed when Redis is nil")
	}
	if result.Remaining != 59 {
		t.Errorf("expected remaining=59, got %d", result.Remaining)
	}
}

func TestLimiter_NilRedis_MultipleChecks(t *testing.T) {
	l := NewLimiter(nil)
	for i := 0; i < 100; i++ {
		result, _ := l.Check(context.Background(), "test:key", 10, time.Minute)
		if !result.Allowed {
			t.Fatalf("expected allowed on check %d", i)
		}
	}
}

// countingChecker allows the first n checks per key.
type countingChecker struct {
	n      int64
	seen   map[string]int64
	limits map[string]int64
	err    error
}

func (c *countingChecker) Check(ctx context.Context, key string, limit int64, window time.Duration) (LimitResult, error) {
	if c.err != nil {
		return LimitResult{}, c.err
	}
	if c.seen == nil {
		c.seen = map[string]int64{}
		c.limits = map[string]int64{}
	}
	c.seen[key]++
	c.limits[key] = limit
	allowed := c.seen[key] <= min(c.n, limit)
	return LimitResult{Allowed: allowed, Remaining: max(limit-c.seen[key], 0), ResetAt: time.Now().Add(window), RetryAfter: window / 2}, nil
}

func TestProviderLimits(t *testing.T) {
	c := &countingChecker{n: 100}
	pl := NewProviderLimits(c, time.Minute, 3, map[string]int{"local": -1, "openrouter": 2})

	for i := 0; i < 2; i++ {
		if ok, _ := pl.Allow(context.Background(), "openrouter"); !ok {
			t.Fatalf("call %d to openrouter should be allowed", i+1)
		}
	}
	if ok, _ := pl.Allow(context.Background(), "openrouter"); ok {
		t.Error("third call to openrouter should exceed rpm=2")
	}

	for i := 0; i < 10; i++ {
		if ok, _ := pl.Allow(context.Background(), "local"); !ok {
			t.Fatal("local has limiting disabled")
		}
	}
	if _, seen := c.seen["provider:local"]; seen {
		t.Error("disabled provider should not hit the checker")
	}

	pl.Allow(context.Background(), "anthropic")
	if c.limits["provider:anthropic"] != 3 {
		t.Errorf("expected default rpm 3, got %d", c.limits["provider:anthropic"])
	}
}

func TestProviderLimits_FailOpen(t *testing.T) {
	pl := NewProviderLimits(&countingChecker{err: errors.New("redis down")}, time.Minute, 1, nil)
	ok, err := pl.Allow(context.Background(), "openrouter")
	if !ok {
		t.Error("expected fail-open on checker error")
	}
	if err == nil {
		t.Error("expected error to be reported")
	}

	var nilLimits *ProviderLimits
	if ok, _ := nilLimits.Allow(context.Background(), "x"); !ok {
		t.Error("nil limits must allow")
	}
}
