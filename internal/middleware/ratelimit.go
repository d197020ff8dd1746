package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/infinitedim/skyvix/internal/config"
)

// CounterStore is the slice of Redis the rate limiter needs: atomic
// increment plus expiry.  Abstracting it keeps the windowing logic
// testable without a Redis instance.
type CounterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// errNoRedisClient is what the adapters report when they were built
// around a nil *redis.Client (config.NewRedisClient returns nil when
// the server is unreachable at startup).  Both middlewares treat store
// errors as a miss, so a nil client degrades to no limiting/caching
// instead of a panic.
var errNoRedisClient = errors.New("redis client not configured")

// RedisCounter adapts *redis.Client to CounterStore.
type RedisCounter struct{ RDB *redis.Client }

func (r RedisCounter) Incr(ctx context.Context, key string) (int64, error) {
	if r.RDB == nil {
		return 0, errNoRedisClient
	}
	return r.RDB.Incr(ctx, key).Result()
}

func (r RedisCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if r.RDB == nil {
		return errNoRedisClient
	}
	return r.RDB.Expire(ctx, key, ttl).Err()
}

// RateLimit returns a fixed-window limiter.  Each key gets cfg.Limit
// requests per cfg.Window; the window boundary comes from the wall
// clock so all instances sharing the counter store agree on it.  A
// store error fails open: limiting is protection, not a feature the
// request depends on.
func RateLimit(cfg config.RateLimitConfig, store CounterStore) echo.MiddlewareFunc {
	if !cfg.Enabled || store == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			now := time.Now()
			window := now.Unix() / int64(cfg.Window/time.Second)
			key := buildRateKey(cfg, c) + ":" + strconv.FormatInt(window, 10)

			ctx := c.Request().Context()
			count, err := store.Incr(ctx, key)
			if err != nil {
				if cfg.Debug {
					c.Logger().Warnf("[ratelimit] store error for key=%s: %v", key, err)
				}
				return next(c)
			}
			if count == 1 {
				// First hit in this window owns the expiry.
				if err := store.Expire(ctx, key, cfg.Window+time.Second); err != nil && cfg.Debug {
					c.Logger().Warnf("[ratelimit] expire failed for key=%s: %v", key, err)
				}
			}

			remaining := int64(cfg.Limit) - count
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(cfg.Limit) {
				windowEnd := (window + 1) * int64(cfg.Window/time.Second)
				secs := int(math.Ceil(float64(windowEnd - now.Unix())))
				if secs < 0 {
					secs = 0
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					c.Logger().Infof("[ratelimit] block key=%s count=%d", key, count)
				}
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}

			if cfg.Debug {
				c.Response().Header().Set("X-RateLimit-Key", key)
			}
			return next(c)
		}
	}
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := []string{cfg.Prefix}
	strategy := strings.ToLower(cfg.KeyStrategy)
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := currentUserID(c)
	route := c.Request().Method + " " + c.Path()

	switch strategy {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}

func currentUserID(c echo.Context) string {
	if v := c.Get("user_id"); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "anon"
}
