package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/storage/models"
	"github.com/aeo-tracker/backend/internal/temporal"
	"github.com/aeo-tracker/backend/pkg/logger"
)

type RecordsHandler struct {
	store *temporal.Store
}

func NewRecordsHandler(store *temporal.Store) *RecordsHandler {
	return &RecordsHandler{
		store: store,
	}
}

func (h *RecordsHandler) SavePosition(c *fiber.Ctx) error {
	var req models.PositionRecord
	if err := c.BodyParser(&req); err != nil {
		logger.Debug("Failed to parse position record", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	saved, err := h.store.SavePositionRecord(c.UserContext(), req)
	if err != nil {
		return respondError(c, err, "save position record")
	}

	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (h *RecordsHandler) ListPositions(c *fiber.Ctx) error {
	records, err := h.store.GetPositionRecords(c.UserContext(), models.PositionFilter{
		Brand:    c.Query("brand"),
		Query:    c.Query("query"),
		LLM:      c.Query("llm"),
		FromDate: c.Query("from"),
		ToDate:   c.Query("to"),
		Limit:    c.QueryInt("limit", 0),
	})
	if err != nil {
		return respondError(c, err, "list position records")
	}

	return c.JSON(fiber.Map{
		"records": records,
		"count":   len(records),
	})
}

func (h *RecordsHandler) SaveVariability(c *fiber.Ctx) error {
	var req models.VariabilityTest
	if err := c.BodyParser(&req); err != nil {
		logger.Debug("Failed to parse variability test", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	saved, err := h.store.SaveVariabilityTest(c.UserContext(), req)
	if err != nil {
		return respondError(c, err, "save variability test")
	}

	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (h *RecordsHandler) ListVariability(c *fiber.Ctx) error {
	tests, err := h.store.GetVariabilityTests(c.UserContext(), models.VariabilityFilter{
		Brand:    c.Query("brand"),
		Query:    c.Query("query"),
		FromDate: c.Query("from"),
		ToDate:   c.Query("to"),
		Limit:    c.QueryInt("limit", 0),
	})
	if err != nil {
		return respondError(c, err, "list variability tests")
	}

	return c.JSON(fiber.Map{
		"tests": tests,
		"count": len(tests),
	})
}

func (h *RecordsHandler) SaveMonitoring(c *fiber.Ctx) error {
	var req models.MonitoringSettings
	if err := c.BodyParser(&req); err != nil {
		logger.Debug("Failed to parse monitoring settings", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	if err := h.store.SaveMonitoringSettings(c.UserContext(), req); err != nil {
		return respondError(c, err, "save monitoring settings")
	}

	return c.JSON(fiber.Map{
		"status": "saved",
	})
}

func (h *RecordsHandler) ListMonitoring(c *fiber.Ctx) error {
	filter := models.MonitoringFilter{Brand: c.Query("brand")}

	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "active must be true or false")
		}
		filter.IsActive = &active
	}

	settings, err := h.store.GetMonitoringSettings(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err, "list monitoring settings")
	}

	return c.JSON(fiber.Map{
		"settings": settings,
		"count":    len(settings),
	})
}
