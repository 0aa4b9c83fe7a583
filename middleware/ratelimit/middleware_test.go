package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, e *echo.Echo, ip string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_AllowsUnderLimit(t *testing.T) {
	e := echo.New()
	e.Use(Middleware(&Config{Rate: 3, Period: time.Minute}))
	e.GET("/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		rec := doRequest(t, e, "10.0.0.1")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(t, e, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestMiddleware_KeysByClientIP(t *testing.T) {
	e := echo.New()
	e.Use(Middleware(&Config{Rate: 1, Period: time.Minute}))
	e.GET("/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	require.Equal(t, http.StatusOK, doRequest(t, e, "10.0.0.1").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(t, e, "10.0.0.1").Code)

	// a different client is unaffected
	assert.Equal(t, http.StatusOK, doRequest(t, e, "10.0.0.2").Code)
}

func TestMiddleware_SetsRateLimitHeaders(t *testing.T) {
	e := echo.New()
	e.Use(Middleware(&Config{Rate: 5, Period: time.Minute}))
	e.GET("/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	rec := doRequest(t, e, "10.0.0.1")
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestMemoryStore_WindowExpiry(t *testing.T) {
	store := NewMemoryStore()

	count := store.Increment("key", time.Now().Add(20*time.Millisecond))
	require.Equal(t, 1, count)

	count = store.Increment("key", time.Now().Add(20*time.Millisecond))
	require.Equal(t, 2, count)

	time.Sleep(30 * time.Millisecond)

	// the expired window starts over
	count = store.Increment("key", time.Now().Add(time.Minute))
	assert.Equal(t, 1, count)

	_, _, exists := store.Get("missing")
	assert.False(t, exists)
}
