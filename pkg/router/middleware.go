package router

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"golang.org/x/time/rate"
)

func HttpRealIP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if xForwardedFor := c.Get(http.CanonicalHeaderKey("X-Forwarded-For")); xForwardedFor != "" {
			first, _, _ := strings.Cut(xForwardedFor, ",")
			c.Locals("remote_ip", strings.TrimSpace(first))
		} else if xRealIP := c.Get(http.CanonicalHeaderKey("X-Real-IP")); xRealIP != "" {
			c.Locals("remote_ip", strings.TrimSpace(xRealIP))
		}
		return c.Next()
	}
}

// HttpRequestID tags every request; log.Print picks the id up from locals.
func HttpRequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		ContextKey: "request_id",
	})
}

// HttpRateLimit applies one token bucket to the whole API. Each action call
// opens a WhatsApp session, so the bucket protects the account as much as the host.
func HttpRateLimit(perSecond float64, burst int) fiber.Handler {
	if perSecond <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(c *fiber.Ctx) error {
		if !limiter.Allow() {
			return ResponseTooManyRequests(c, "")
		}
		return c.Next()
	}
}
