package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	IsDevelopment bool
	// NoStorePrefixes lists path prefixes whose responses must not be
	// cached. Tracking data changes on every save.
	NoStorePrefixes []string
}

// HeadersMiddleware sets the hardening headers for a JSON API. Nothing here
// serves HTML, so the content security policy denies everything.
func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "no-referrer")
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		for _, prefix := range cfg.NoStorePrefixes {
			if strings.HasPrefix(c.Path(), prefix) {
				c.Set("Cache-Control", "no-store")
				break
			}
		}

		return c.Next()
	}
}
