package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "docroute:rl:"

// LimitResult is the outcome of a rate limit check.
type LimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Checker is implemented by Limiter; tests substitute their own.
type Checker interface {
	Check(ctx context.Context, key string, limit int64, window time.Duration) (LimitResult, error)
}

// Limiter performs sliding-window rate limiting backed by Redis sorted sets.
type Limiter struct {
	rdb redis.Scripter
}

// NewLimiter creates a new rate limiter. If rdb is nil, all checks pass (fail open).
func NewLimiter(rdb *redis.Client) *Limiter {
	if rdb == nil {
		return &Limiter{}
	}
	return &Limiter{rdb: rdb}
}

// slidingWindowScript atomically removes expired entries, adds the current
// one and counts.
// KEYS[1] = sorted set key
// ARGV[1] = window start (unix micro)
// ARGV[2] = now (unix micro), used as score and member prefix
// ARGV[3] = limit
// ARGV[4] = TTL seconds for the key
// Returns: [current_count, 1=allowed/0=denied]
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('EXPIRE', key, ttl)
    return {count + 1, 1}
end

redis.call('EXPIRE', key, ttl)
return {count, 0}
`)

// Check performs a sliding-window rate limit check on key. A non-positive
// limit disables the check.
func (l *Limiter) Check(ctx context.Context, key string, limit int64, window time.Duration) (LimitResult, error) {
	now := time.Now()
	if l.rdb == nil || limit <= 0 {
		return LimitResult{Allowed: true, Remaining: max(limit-1, 0), ResetAt: now.Add(window)}, nil
	}

	windowStart := now.Add(-window).UnixMicro()
	ttlSecs := int64(window.Seconds()) + 1

	result, err := slidingWindowScript.Run(ctx, l.rdb, []string{keyPrefix + key},
		windowStart, now.UnixMicro(), limit, ttlSecs,
	).Int64Slice()
	if err != nil || len(result) != 2 {
		slog.Warn("ratelimit.redis_error", "key", key, "error", err)
		return LimitResult{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}, nil
	}

	count := result[0]
	allowed := result[1] == 1
	remaining := max(limit-count, 0)

	var retryAfter time.Duration
	if !allowed {
		retryAfter = window / 2
	}

	return LimitResult{
		Allowed:    allowed,
		Remaining:  remaining,
		ResetAt:    now.Add(window),
		RetryAfter: retryAfter,
	}, nil
}

// ProviderLimits applies each provider's requests-per-window budget to
// outbound backend calls.
type ProviderLimits struct {
	checker    Checker
	window     time.Duration
	defaultRPM int
	rpm        map[string]int
}

// NewProviderLimits builds limits from per-provider rpm values. Providers
// without an entry, or with rpm 0, use defaultRPM. A negative rpm disables
// limiting for that provider.
func NewProviderLimits(checker Checker, window time.Duration, defaultRPM int, rpm map[string]int) *ProviderLimits {
	if window <= 0 {
		window = time.Minute
	}
	m := make(map[string]int, len(rpm))
	for k, v := range rpm {
		m[k] = v
	}
	return &ProviderLimits{checker: checker, window: window, defaultRPM: defaultRPM, rpm: m}
}

// Allow reports whether one more call to provider fits its budget.
func (p *ProviderLimits) Allow(ctx context.Context, provider string) (bool, error) {
	if p == nil || p.checker == nil {
		return true, nil
	}
	limit := p.rpm[provider]
	if limit == 0 {
		limit = p.defaultRPM
	}
	if limit <= 0 {
		return true, nil
	}
	res, err := p.checker.Check(ctx, fmt.Sprintf("provider:%s", provider), int64(limit), p.window)
	if err != nil {
		return true, err
	}
	return res.Allowed, nil
}
