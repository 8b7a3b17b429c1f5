// Package ratelimit implements fixed-window request counters in Redis,
// shared by every API replica.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces rate limit counters in Redis.
const KeyPrefix = "rate_limit:"

// The first hit of a window sets the expiry; later hits only count.
const fixedWindowLua = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`

// Result describes the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

type Limiter struct {
	rdb    redis.Scripter
	script *redis.Script
}

func NewLimiter(rdb redis.Scripter) *Limiter {
	return &Limiter{rdb: rdb, script: redis.NewScript(fixedWindowLua)}
}

// Allow counts one hit for key and reports whether it fits in limit hits
// per window.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	res, err := l.script.Run(ctx, l.rdb, []string{KeyPrefix + key}, window.Milliseconds()).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit eval: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return Result{}, fmt.Errorf("ratelimit invalid result")
	}

	count := int(toInt64(values[0]))
	ttl := time.Duration(toInt64(values[1])) * time.Millisecond
	if ttl < 0 {
		ttl = window
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: count <= limit, Remaining: remaining, ResetIn: ttl}, nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}
