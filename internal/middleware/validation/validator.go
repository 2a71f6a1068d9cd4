package validation

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Brand, query and website strings are echoed back into the dashboard, so
// markup in them is refused outright.
var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

var textFields = []string{"brand", "query", "website", "llm", "context_quality"}

type Config struct {
	MaxFieldLength      int
	AllowedContentTypes []string
	// SkipPaths are not inspected beyond the content type, e.g. bulk import.
	SkipPaths []string
	Logger    *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxFieldLength == 0 {
		cfg.MaxFieldLength = 500
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		for _, p := range cfg.SkipPaths {
			if strings.HasPrefix(c.Path(), p) {
				return c.Next()
			}
		}

		body := c.Body()
		if len(body) == 0 {
			return c.Next()
		}

		var req map[string]interface{}
		if err := json.Unmarshal(body, &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		for _, field := range textFields {
			raw, present := req[field]
			if !present || raw == nil {
				continue
			}
			value, ok := raw.(string)
			if !ok {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": field + " must be a string",
				})
			}
			if len(value) > cfg.MaxFieldLength {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": field + " exceeds maximum length",
				})
			}
			if containsXSS(value) {
				cfg.Logger.Warn("Potential XSS attempt",
					zap.String("ip", c.IP()),
					zap.String("field", field),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid " + field + " content",
				})
			}
		}

		if website, ok := req["website"].(string); ok && website != "" && !isValidWebsite(website) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid website format",
			})
		}

		return c.Next()
	}
}

func allowedType(contentType string, allowed []string) bool {
	for _, a := range allowed {
		if strings.Contains(contentType, a) {
			return true
		}
	}
	return false
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

// isValidWebsite accepts a bare host ("tesla.com") or an http(s) URL.
func isValidWebsite(website string) bool {
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Hostname() != "" && !strings.ContainsAny(u.Hostname(), " _")
}
