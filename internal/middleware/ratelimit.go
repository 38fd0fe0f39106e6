package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sowells/pay-webapp/internal/config"
)

// limiterScript keeps a bucket as a hash of balance and stamp, where stamp
// is the time of the last whole refill step.  ARGV: now_ms, capacity,
// refill_tokens, interval_ms, ttl_seconds.  Returns {allowed, balance,
// wait_ms}.
var limiterScript = redis.NewScript(`
local now, cap = tonumber(ARGV[1]), tonumber(ARGV[2])
local step, every = tonumber(ARGV[3]), tonumber(ARGV[4])

local h = redis.call('HMGET', KEYS[1], 'balance', 'stamp')
local balance, stamp = tonumber(h[1]), tonumber(h[2])
if not balance or not stamp then
	balance, stamp = cap, now
end

local wait = 0
if every > 0 then
	local gap = math.max(0, now - stamp)
	local partial = gap % every
	local steps = (gap - partial) / every
	if steps > 0 and step > 0 then
		balance = math.min(cap, balance + steps * step)
		stamp = now - partial
	end
	wait = every - partial
end

if balance < 1 then
	return {0, balance, wait}
end

balance = balance - 1
redis.call('HSET', KEYS[1], 'balance', balance, 'stamp', stamp)
redis.call('EXPIRE', KEYS[1], ARGV[5])
return {1, balance, 0}
`)

// NewTokenBucket limits requests per key with a Redis-held token bucket.
// A disabled config or nil client yields a pass-through middleware, and
// Redis errors fail open.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			log := logrus.WithField("key", key)
			args := []interface{}{
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL / time.Second),
			}

			vals, err := limiterScript.Run(c.Request().Context(), rdb, []string{key}, args...).Result()
			if err != nil {
				log.WithError(err).Warn("ratelimit: redis error, allowing request")
				return next(c)
			}
			arr, ok := vals.([]interface{})
			if !ok || len(arr) != 3 {
				log.Warnf("ratelimit: unexpected script result %#v", vals)
				return next(c)
			}
			allowed := fmt.Sprint(arr[0]) == "1"
			remaining := asInt64(arr[1])
			retryMs := asInt64(arr[2])

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				if secs < 0 {
					secs = 0
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				log.WithField("retry_ms", retryMs).Debug("ratelimit: blocked")
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"code":        "TOO_MANY_REQUESTS",
					"error":       "rate limit exceeded",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := userID(c)
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
