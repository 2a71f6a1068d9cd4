package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/storage/models"
	"github.com/aeo-tracker/backend/internal/tracking"
	"github.com/aeo-tracker/backend/pkg/logger"
)

type Tracker interface {
	TrackPositions(ctx context.Context, target tracking.Target) ([]models.PositionRecord, error)
	RunVariabilityTest(ctx context.Context, target tracking.Target) (models.VariabilityTest, error)
}

// TrackingHandler probes LLMs on demand. With no tracker configured every
// route answers 503.
type TrackingHandler struct {
	tracker Tracker
}

func NewTrackingHandler(tracker Tracker) *TrackingHandler {
	return &TrackingHandler{
		tracker: tracker,
	}
}

// parseTarget returns an error message fit for a 400 when the body is not
// a usable target.
func parseTarget(c *fiber.Ctx) (tracking.Target, string) {
	var target tracking.Target
	if err := c.BodyParser(&target); err != nil {
		logger.Debug("Failed to parse tracking target", zap.Error(err))
		return target, "Invalid request body"
	}
	if target.Brand == "" || target.Query == "" {
		return target, "brand and query are required"
	}
	return target, ""
}

func (h *TrackingHandler) unavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "Tracking is disabled: no LLM API key configured",
	})
}

func (h *TrackingHandler) Track(c *fiber.Ctx) error {
	if h.tracker == nil {
		return h.unavailable(c)
	}

	target, msg := parseTarget(c)
	if msg != "" {
		return badRequest(c, msg)
	}

	records, err := h.tracker.TrackPositions(c.UserContext(), target)
	if err != nil {
		return respondError(c, err, "track positions")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"records": records,
		"count":   len(records),
	})
}

func (h *TrackingHandler) RunVariability(c *fiber.Ctx) error {
	if h.tracker == nil {
		return h.unavailable(c)
	}

	target, msg := parseTarget(c)
	if msg != "" {
		return badRequest(c, msg)
	}

	test, err := h.tracker.RunVariabilityTest(c.UserContext(), target)
	if err != nil {
		return respondError(c, err, "run variability test")
	}

	return c.Status(fiber.StatusCreated).JSON(test)
}
