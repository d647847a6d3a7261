package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cache"
)

// HttpCacheInMemory caches GET responses for the given path prefixes only.
// Trigger status and events must never be served stale.
func HttpCacheInMemory(ttl int, prefixes ...string) fiber.Handler {
	if ttl <= 0 {
		ttl = 5
	}
	return cache.New(cache.Config{
		Next: func(c *fiber.Ctx) bool {
			if c.Method() != fiber.MethodGet {
				return true
			}
			for _, prefix := range prefixes {
				if c.Path() == prefix || strings.HasPrefix(c.Path(), prefix+"/") {
					return false
				}
			}
			return true
		},
		Expiration: time.Duration(ttl) * time.Second,
	})
}
