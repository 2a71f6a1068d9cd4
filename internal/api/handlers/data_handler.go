package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/storage/models"
	"github.com/aeo-tracker/backend/internal/temporal"
	"github.com/aeo-tracker/backend/pkg/logger"
)

type DataHandler struct {
	store *temporal.Store
}

func NewDataHandler(store *temporal.Store) *DataHandler {
	return &DataHandler{
		store: store,
	}
}

func (h *DataHandler) Export(c *fiber.Ctx) error {
	snapshot, err := h.store.ExportData(c.UserContext())
	if err != nil {
		return respondError(c, err, "export data")
	}

	filename := fmt.Sprintf("aeo-tracker-export-%s.json", time.Now().UTC().Format("2006-01-02"))
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)

	return c.JSON(snapshot)
}

func (h *DataHandler) Import(c *fiber.Ctx) error {
	var snapshot models.Snapshot
	if err := c.BodyParser(&snapshot); err != nil {
		logger.Debug("Failed to parse import snapshot", zap.Error(err))
		return badRequest(c, "Invalid snapshot")
	}

	if err := h.store.ImportData(c.UserContext(), snapshot); err != nil {
		return respondError(c, err, "import data")
	}

	return c.JSON(fiber.Map{
		"status":              "imported",
		"position_records":    countOrNil(len(snapshot.PositionRecords), snapshot.PositionRecords != nil),
		"variability_tests":   countOrNil(len(snapshot.VariabilityTests), snapshot.VariabilityTests != nil),
		"monitoring_settings": countOrNil(len(snapshot.MonitoringSettings), snapshot.MonitoringSettings != nil),
	})
}

// countOrNil reports untouched collections as null rather than zero.
func countOrNil(n int, present bool) interface{} {
	if !present {
		return nil
	}
	return n
}

func (h *DataHandler) Clear(c *fiber.Ctx) error {
	days := temporal.DefaultRetentionDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return badRequest(c, "days must be a positive integer")
		}
		days = n
	}

	result, err := h.store.ClearOldData(c.UserContext(), days)
	if err != nil {
		return respondError(c, err, "clear old data")
	}

	return c.JSON(result)
}

func (h *DataHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.store.Stats(c.UserContext())
	if err != nil {
		return respondError(c, err, "read stats")
	}

	return c.JSON(stats)
}

func (h *DataHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// Ready reports whether the persistence backend answers.
func (h *DataHandler) Ready(c *fiber.Ctx) error {
	if _, err := h.store.Stats(c.UserContext()); err != nil {
		logger.Warn("Readiness check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
		})
	}

	return c.JSON(fiber.Map{
		"status": "ready",
	})
}
