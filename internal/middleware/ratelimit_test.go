package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitedim/skyvix/internal/config"
)

type memCounter struct {
	counts map[string]int64
	ttls   map[string]time.Duration
	err    error
}

func newMemCounter() *memCounter {
	return &memCounter{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (m *memCounter) Incr(_ context.Context, key string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memCounter) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.ttls[key] = ttl
	return nil
}

func doRequest(mw echo.MiddlewareFunc, ip string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	h := mw(func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	})
	_ = h(c)
	return rec
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	store := newMemCounter()
	mw := RateLimit(config.RateLimitConfig{
		Enabled:     true,
		Limit:       3,
		Window:      time.Minute,
		KeyStrategy: "ip",
		Prefix:      "rl",
	}, store)

	for i := 0; i < 3; i++ {
		rec := doRequest(mw, "10.0.0.1")
		require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}
	rec := doRequest(mw, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitKeysAreIndependent(t *testing.T) {
	store := newMemCounter()
	mw := RateLimit(config.RateLimitConfig{
		Enabled:     true,
		Limit:       1,
		Window:      time.Minute,
		KeyStrategy: "ip",
		Prefix:      "rl",
	}, store)

	require.Equal(t, http.StatusOK, doRequest(mw, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(mw, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, doRequest(mw, "10.0.0.2").Code,
		"another client must not inherit the first client's window")
}

func TestRateLimitFailsOpenOnStoreError(t *testing.T) {
	store := newMemCounter()
	store.err = errors.New("connection refused")
	mw := RateLimit(config.RateLimitConfig{
		Enabled:     true,
		Limit:       1,
		Window:      time.Minute,
		KeyStrategy: "ip",
		Prefix:      "rl",
	}, store)

	assert.Equal(t, http.StatusOK, doRequest(mw, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, doRequest(mw, "10.0.0.1").Code)
}

func TestRateLimitNilRedisClientFailsOpen(t *testing.T) {
	// config.NewRedisClient returns nil when Redis is down at startup;
	// an adapter built around that nil client must fail open, not panic.
	mw := RateLimit(config.RateLimitConfig{
		Enabled:     true,
		Limit:       1,
		Window:      time.Minute,
		KeyStrategy: "ip",
		Prefix:      "rl",
	}, RedisCounter{})

	assert.Equal(t, http.StatusOK, doRequest(mw, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, doRequest(mw, "10.0.0.1").Code)
}

func TestRateLimitNilStorePassesThrough(t *testing.T) {
	mw := RateLimit(config.RateLimitConfig{
		Enabled: true,
		Limit:   1,
		Window:  time.Minute,
	}, nil)
	assert.Equal(t, http.StatusOK, doRequest(mw, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, doRequest(mw, "10.0.0.1").Code)
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	mw := RateLimit(config.RateLimitConfig{Enabled: false}, newMemCounter())
	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, doRequest(mw, "10.0.0.1").Code)
	}
}

func TestRateLimitSetsWindowExpiry(t *testing.T) {
	store := newMemCounter()
	mw := RateLimit(config.RateLimitConfig{
		Enabled:     true,
		Limit:       5,
		Window:      30 * time.Second,
		KeyStrategy: "ip",
		Prefix:      "rl",
	}, store)

	doRequest(mw, "10.0.0.1")
	require.Len(t, store.ttls, 1)
	for _, ttl := range store.ttls {
		assert.Equal(t, 31*time.Second, ttl)
	}
}
