package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces the window counters.
const DefaultKeyPrefix = "rate_limit:"

// incrWindow increments the counter and starts its expiry on first use,
// returning the new count and the remaining window in milliseconds.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// Redis keeps windows in a shared Redis so every replica enforces the same
// quota.
type Redis struct {
	client redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

// NewRedis returns a limiter admitting perMinute requests per subject, or
// nil when perMinute is not positive.
func NewRedis(client redis.Scripter, perMinute int, prefix string) *Redis {
	if perMinute <= 0 {
		return nil
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{
		client: client,
		limit:  perMinute,
		window: Window,
		prefix: prefix,
	}
}

func (r *Redis) Allow(ctx context.Context, subject string) (bool, time.Duration, error) {
	res, err := incrWindow.Run(ctx, r.client, []string{r.prefix + subject}, r.window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("%w: unexpected script reply %v", ErrUnavailable, res)
	}
	if res[0] > int64(r.limit) {
		return false, time.Duration(res[1]) * time.Millisecond, nil
	}
	return true, 0, nil
}
