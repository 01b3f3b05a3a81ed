// Package ratelimit implements a global requests-per-minute guard in front of
// the upstream API, using a Redis sliding window driven by an atomic Lua
// script.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims expired members of a sorted set, then admits the
// request if the remaining count is under the limit.
// KEYS[1] = Redis key
// ARGV[1] = now (unix nanoseconds)
// ARGV[2] = window (nanoseconds)
// ARGV[3] = limit
// Returns 1 if admitted, 0 if limited.
var slidingWindowScript = redis.NewScript(`
		local key    = KEYS[1]
		local now    = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])
		local limit  = tonumber(ARGV[3])

		redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

		if redis.call('ZCARD', key) >= limit then
			return 0
		end

		local member = tostring(now) .. tostring(math.random(1, 1000000))
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, math.ceil(window / 1000000))
		return 1
`)

const (
	DefaultKey = "relay:ratelimit:rpm"

	// RetryAfterSeconds is the Retry-After hint sent with a limited response.
	RetryAfterSeconds = 60
)

// RPMLimiter admits at most limit requests per sliding window across every
// process sharing the same Redis key.
type RPMLimiter struct {
	rdb    redis.Scripter
	limit  int
	key    string
	window time.Duration
	now    func() time.Time
}

// Option configures an RPMLimiter.
type Option func(*RPMLimiter)

// WithKey overrides the Redis key the window is stored under.
func WithKey(key string) Option {
	return func(r *RPMLimiter) {
		if key != "" {
			r.key = key
		}
	}
}

// WithWindow overrides the window length (one minute by default).
func WithWindow(d time.Duration) Option {
	return func(r *RPMLimiter) {
		if d > 0 {
			r.window = d
		}
	}
}

// NewRPMLimiter creates a limiter. limit must be > 0; callers that want no
// limit should not install one at all.
func NewRPMLimiter(rdb redis.Scripter, limit int, opts ...Option) *RPMLimiter {
	r := &RPMLimiter{
		rdb:    rdb,
		limit:  limit,
		key:    DefaultKey,
		window: time.Minute,
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Allow reports whether the current request fits in the window.
//
// When Redis cannot be reached the request is admitted and the error is
// returned alongside allowed=true so the caller can log it.
func (r *RPMLimiter) Allow(ctx context.Context) (bool, error) {
	result, err := slidingWindowScript.Run(ctx, r.rdb,
		[]string{r.key},
		r.now().UnixNano(), r.window.Nanoseconds(), r.limit,
	).Int()
	if err != nil {
		return true, fmt.Errorf("ratelimit: %w", err)
	}
	return result == 1, nil
}
