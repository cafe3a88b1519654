package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

// luaScript is a token bucket keyed per client. It returns 1 when a token was
// taken and 0 when the bucket is empty.
const luaScript = `
local key = KEYS[1]
local max_tokens = tonumber(ARGV[1])
local refill_time = tonumber(ARGV[2])
local current_time = tonumber(ARGV[3])
local bucket = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(bucket[1]) or max_tokens
local last_refill = tonumber(bucket[2]) or 0
local delta = math.max(0, current_time - last_refill)
local refill = math.floor(delta / refill_time)
tokens = math.min(max_tokens, tokens + refill)
if tokens > 0 then
	tokens = tokens - 1
	redis.call("HMSET", key, "tokens", tokens, "last_refill", current_time)
	redis.call("EXPIRE", key, refill_time * 2)
	return 1
else
	return 0
end`

const rateLimitKeyPrefix = "ratelimit:"

// RateLimiter decides whether the client identified by key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisRateLimiter shares one bucket per client across every replica.
type RedisRateLimiter struct {
	client        redis.Cmdable
	maxTokens     int
	refillSeconds int
	now           func() time.Time
}

func NewRedisRateLimiter(client redis.Cmdable, maxTokens, refillSeconds int) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:        client,
		maxTokens:     maxTokens,
		refillSeconds: refillSeconds,
		now:           time.Now,
	}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	result, err := l.client.Eval(ctx, luaScript, []string{rateLimitKeyPrefix + key},
		l.maxTokens, l.refillSeconds, l.now().Unix()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}
	return result == 1, nil
}

// maxLocalBuckets bounds the in-process bucket map; full buckets are pruned
// once it is reached.
const maxLocalBuckets = 10000

// LocalRateLimiter keeps the buckets in process memory. It is used when no
// Redis is configured.
type LocalRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func NewLocalRateLimiter(maxTokens, refillSeconds int) *LocalRateLimiter {
	return &LocalRateLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Every(time.Duration(refillSeconds) * time.Second),
		burst:   maxTokens,
	}
}

func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxLocalBuckets {
			l.prune()
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = lim
	}
	return lim.Allow(), nil
}

func (l *LocalRateLimiter) prune() {
	for key, lim := range l.buckets {
		if lim.Tokens() >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}
