package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"orderbook-engine/src/config"
)

// RateLimiter is a fixed-window counter per client address.
type RateLimiter struct {
	maxRequests    int
	windowDuration time.Duration
	now            func() time.Time

	mu       sync.Mutex
	counters map[string]clientWindow
}

type clientWindow struct {
	window int64
	count  int
}

func NewRateLimiter(maxRequests int, windowDuration time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests:    maxRequests,
		windowDuration: windowDuration,
		now:            time.Now,
		counters:       make(map[string]clientWindow),
	}
}

func RateLimiterFromConfig(cfg config.RateLimitConfig) *RateLimiter {
	return NewRateLimiter(cfg.Max, cfg.Window)
}

func (rl *RateLimiter) getClientID(c *fiber.Ctx) string {
	ip := c.Get("X-Forwarded-For")
	if ip == "" {
		ip = c.Get("X-Real-IP")
	}
	if ip == "" {
		ip = c.IP()
	}
	return ip
}

func (rl *RateLimiter) windowAt(now time.Time) int64 {
	return now.UnixNano() / rl.windowDuration.Nanoseconds()
}

func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	window := rl.windowAt(rl.now())
	current, exists := rl.counters[clientID]

	// edge case: a new window resets the client's count
	if !exists || current.window != window {
		rl.counters[clientID] = clientWindow{window: window, count: 1}
		return true
	}

	if current.count >= rl.maxRequests {
		return false
	}

	current.count++
	rl.counters[clientID] = current
	return true
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := rl.getClientID(c)

		if !rl.Allow(clientID) {
			log.Warn().
				Str("client_ip", clientID).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("max_requests", rl.maxRequests).
				Msg("Rate limit exceeded")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
		c.Set("X-RateLimit-Window", rl.windowDuration.String())

		return c.Next()
	}
}
