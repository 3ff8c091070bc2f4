package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// countScript increments the window counter and arms its expiry on the first
// hit, so every replica observes the same fixed window. It returns the new
// count and the remaining window in milliseconds.
var countScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// DistributedRateLimiter counts requests per key in Redis so that every
// TaskHub replica enforces the same login and email limits
type DistributedRateLimiter struct {
	client    *redis.Client
	limit     int64
	window    time.Duration
	namespace string
}

// NewDistributedRateLimiter creates a Redis-backed limiter. Keys are stored
// under namespace, which defaults to "ratelimit".
func NewDistributedRateLimiter(client *redis.Client, config *RateLimitConfig, namespace string) *DistributedRateLimiter {
	if config == nil {
		config = LoginRateLimitConfig()
	}
	if namespace == "" {
		namespace = "ratelimit"
	}
	return &DistributedRateLimiter{
		client:    client,
		limit:     int64(config.RequestsPerWindow),
		window:    config.WindowDuration,
		namespace: namespace,
	}
}

func (rl *DistributedRateLimiter) key(k string) string {
	return rl.namespace + ":" + k
}

// Allow counts the request against its window. Once the limit is exceeded
// it reports how long until the window resets.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := countScript.Run(ctx, rl.client, []string{rl.key(key)}, rl.window.Milliseconds()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit counter: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, 0, fmt.Errorf("rate limit counter: unexpected reply %v", res)
	}
	count, _ := vals[0].(int64)
	pttl, _ := vals[1].(int64)

	if count <= rl.limit {
		return true, 0, nil
	}

	retryAfter := time.Duration(pttl) * time.Millisecond
	if retryAfter <= 0 {
		retryAfter = rl.window
	}
	return false, retryAfter, nil
}

// Remaining reports how many requests key may still make in its window
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	used, err := rl.client.Get(ctx, rl.key(key)).Int64()
	switch {
	case err == redis.Nil:
		return int(rl.limit), nil
	case err != nil:
		return 0, err
	case used >= rl.limit:
		return 0, nil
	}
	return int(rl.limit - used), nil
}

// Reset forgets the window for key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.client.Del(ctx, rl.key(key)).Err()
}

// HealthCheck pings the Redis server backing the counters
func (rl *DistributedRateLimiter) HealthCheck(ctx context.Context) error {
	return rl.client.Ping(ctx).Err()
}
