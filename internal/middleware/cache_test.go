package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitedim/skyvix/internal/config"
)

type memCache struct {
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) GetBytes(_ context.Context, key string) ([]byte, error) {
	return m.data[key], nil
}

func (m *memCache) SetBytes(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.data[key] = val
	m.ttls[key] = ttl
	return nil
}

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{"GET": true},
		TTL:          time.Minute,
		KeyStrategy:  "route_query",
		Prefix:       "cache",
		MaxBodyBytes: 1 << 20,
	}
}

func doCached(mw echo.MiddlewareFunc, method, target string, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(target)
	_ = mw(handler)(c)
	return rec
}

func TestResponseCacheHitReplaysBody(t *testing.T) {
	store := newMemCache()
	mw := ResponseCache(cacheConfig(), store)

	calls := 0
	handler := func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"stations": []string{"GMR", "BD"}})
	}

	first := doCached(mw, http.MethodGet, "/v1/stations", handler)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	require.Len(t, store.data, 1)

	second := doCached(mw, http.MethodGet, "/v1/stations", handler)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, 1, calls, "handler must not run on a hit")
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestResponseCacheKeyIncludesQuery(t *testing.T) {
	store := newMemCache()
	mw := ResponseCache(cacheConfig(), store)

	handler := func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"q": c.QueryParam("city")})
	}

	doCached(mw, http.MethodGet, "/v1/stations?city=Jakarta", handler)
	rec := doCached(mw, http.MethodGet, "/v1/stations?city=Bandung", handler)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Len(t, store.data, 2)
}

func TestResponseCacheSkipsNonCacheableMethod(t *testing.T) {
	store := newMemCache()
	mw := ResponseCache(cacheConfig(), store)

	handler := func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
	doCached(mw, http.MethodPost, "/v1/stations", handler)
	assert.Empty(t, store.data)
}

func TestResponseCacheSkipsErrorResponses(t *testing.T) {
	store := newMemCache()
	mw := ResponseCache(cacheConfig(), store)

	handler := func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "station not found"})
	}
	doCached(mw, http.MethodGet, "/v1/stations/99", handler)
	assert.Empty(t, store.data)
}

func TestResponseCacheNilRedisClientServesUncached(t *testing.T) {
	// A RedisCache wrapping a nil client (Redis down at startup) must
	// behave like a permanent miss rather than panic.
	mw := ResponseCache(cacheConfig(), RedisCache{})

	calls := 0
	handler := func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
	rec := doCached(mw, http.MethodGet, "/v1/stations", handler)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doCached(mw, http.MethodGet, "/v1/stations", handler)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, calls, "every request must reach the handler")
}

func TestResponseCacheDisabledPassesThrough(t *testing.T) {
	store := newMemCache()
	mw := ResponseCache(config.CacheConfig{Enabled: false}, store)

	handler := func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
	rec := doCached(mw, http.MethodGet, "/v1/stations", handler)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Empty(t, store.data)
}
