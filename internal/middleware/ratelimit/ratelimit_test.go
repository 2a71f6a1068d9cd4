package ratelimit

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newApp(t *testing.T, perMinute int, c *clock) *fiber.App {
	t.Helper()

	rl := New(Config{
		MaxRequestsPerMinute: perMinute,
		Clock:                c.Now,
		Skip:                 func(ctx *fiber.Ctx) bool { return ctx.Path() == "/health" },
	})
	t.Cleanup(rl.Stop)

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/positions", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func get(t *testing.T, app *fiber.App, path string) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRateLimiter_BlocksAfterBudget(t *testing.T) {
	c := &clock{now: time.Unix(1000, 0)}
	app := newApp(t, 3, c)

	for i := 0; i < 3; i++ {
		assert.Equal(t, fiber.StatusOK, get(t, app, "/positions"))
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/positions", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "3", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestRateLimiter_Refills(t *testing.T) {
	c := &clock{now: time.Unix(1000, 0)}
	app := newApp(t, 3, c)

	for i := 0; i < 3; i++ {
		get(t, app, "/positions")
	}
	require.Equal(t, fiber.StatusTooManyRequests, get(t, app, "/positions"))

	// One token every 20s at three per minute.
	c.Advance(20 * time.Second)
	assert.Equal(t, fiber.StatusOK, get(t, app, "/positions"))
	assert.Equal(t, fiber.StatusTooManyRequests, get(t, app, "/positions"))
}

func TestRateLimiter_SkipExemptsPath(t *testing.T) {
	c := &clock{now: time.Unix(1000, 0)}
	app := newApp(t, 1, c)

	for i := 0; i < 5; i++ {
		assert.Equal(t, fiber.StatusOK, get(t, app, "/health"))
	}
	assert.Equal(t, fiber.StatusOK, get(t, app, "/positions"))
}

func TestRateLimiter_SweepDropsIdleBuckets(t *testing.T) {
	c := &clock{now: time.Unix(1000, 0)}
	rl := New(Config{MaxRequestsPerMinute: 10, Clock: c.Now})
	defer rl.Stop()

	_, ok := rl.allow("10.0.0.1")
	require.True(t, ok)

	c.Advance(11 * time.Minute)
	rl.sweep(10 * time.Minute)

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	assert.Empty(t, rl.buckets)
}
