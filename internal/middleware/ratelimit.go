package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"vixogram/internal/cache"
)

// ClientIP returns the caller's address, honoring X-Forwarded-For only when
// the process is configured to trust the proxy in front of it.
func ClientIP(c *fiber.Ctx) string {
	if cfg != nil && cfg.TrustProxy {
		if fwd := c.Get("X-Forwarded-For"); fwd != "" {
			// First hop is the original client.
			if i := strings.IndexByte(fwd, ','); i >= 0 {
				return strings.TrimSpace(fwd[:i])
			}
			return strings.TrimSpace(fwd)
		}
	}
	return c.IP()
}

// AuthRateLimit enforces a fixed-window per-IP limit on auth-adjacent
// endpoints. Fails open when the cache is unavailable; denials carry a
// Retry-After header.
func AuthRateLimit(limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := cache.AuthRateKey(c.Path(), ClientIP(c))
		count, remaining, err := cache.IncrWindow(c.UserContext(), key, window)
		if err != nil {
			return c.Next()
		}
		if count > int64(limit) {
			retryAfter := int(remaining.Seconds()) + 1
			c.Set("Retry-After", strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
		}
		return c.Next()
	}
}
