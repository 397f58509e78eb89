package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbook-engine/src/config"
)

func newApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New()
	for _, h := range handlers {
		app.Use(h)
	}
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/api/v1/orderbook", func(c *fiber.Ctx) error { return c.SendString("book") })
	return app
}

// TestRateLimiterWindows tests the per-client budget and its reset on a new window
func TestRateLimiterWindows(t *testing.T) {
	rl := NewRateLimiter(3, 100*time.Millisecond)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "clients are independent")

	now = now.Add(100 * time.Millisecond)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := RateLimiterFromConfig(config.RateLimitConfig{Max: 2, Window: time.Hour})
	app := newApp(rl.Middleware())

	var statuses []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orderbook", nil)
		req.Header.Set("X-Forwarded-For", "192.168.1.9")
		resp, err := app.Test(req)
		require.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
		if resp.StatusCode == http.StatusOK {
			assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
			assert.Equal(t, "1h0m0s", resp.Header.Get("X-RateLimit-Window"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

// TestMaintenanceMode tests 503 everywhere except the health check
func TestMaintenanceMode(t *testing.T) {
	sa := ServiceAvailabilityFromConfig(config.AvailabilityConfig{MaintenanceMode: true})
	app := newApp(sa.Middleware())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/orderbook", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	sa.SetMaintenanceMode(false)
	assert.False(t, sa.IsMaintenanceMode())
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/orderbook", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerOverload(t *testing.T) {
	sa := NewServiceAvailability(1)
	app := fiber.New()
	app.Use(sa.Middleware())

	release := make(chan struct{})
	entered := make(chan struct{})
	app.Get("/slow", func(c *fiber.Ctx) error {
		close(entered)
		<-release
		return c.SendString("done")
	})
	app.Get("/fast", func(c *fiber.Ctx) error { return c.SendString("fast") })

	slowDone := make(chan int, 1)
	go func() {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/slow", nil), -1)
		if err != nil {
			slowDone <- 0
			return
		}
		slowDone <- resp.StatusCode
	}()
	<-entered

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/fast", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int64(1), sa.GetInFlightRequests())

	close(release)
	assert.Equal(t, http.StatusOK, <-slowDone)
	assert.Zero(t, sa.GetInFlightRequests())
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	app := newApp(RequestLogger(false))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	_, err = uuid.Parse(resp.Header.Get(RequestIDHeader))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "client-supplied")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "client-supplied", resp.Header.Get(RequestIDHeader))
}
