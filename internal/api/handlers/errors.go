package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/temporal"
	"github.com/aeo-tracker/backend/internal/tracking"
	"github.com/aeo-tracker/backend/pkg/logger"
)

// respondError maps a store or tracker error to its HTTP status. Only
// invalid input echoes the error text back to the caller.
func respondError(c *fiber.Ctx, err error, action string) error {
	switch {
	case errors.Is(err, temporal.ErrInvalidRecord):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, temporal.ErrPersistenceUnavailable):
		logger.Error("Storage unavailable", zap.String("action", action), zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Storage unavailable",
		})
	case errors.Is(err, tracking.ErrNoProviders):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "No LLM providers configured",
		})
	case errors.Is(err, tracking.ErrAllProbesFailed):
		logger.Error("LLM providers failed", zap.String("action", action), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "All LLM providers failed",
		})
	default:
		logger.Error("Failed to "+action, zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to " + action,
		})
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}
