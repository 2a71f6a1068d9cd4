package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aeo-tracker/backend/internal/temporal"
)

type AnalyticsHandler struct {
	store *temporal.Store
}

func NewAnalyticsHandler(store *temporal.Store) *AnalyticsHandler {
	return &AnalyticsHandler{
		store: store,
	}
}

func brandAndQuery(c *fiber.Ctx) (string, string, bool) {
	brand, query := c.Query("brand"), c.Query("query")
	return brand, query, brand != "" && query != ""
}

func (h *AnalyticsHandler) Trends(c *fiber.Ctx) error {
	brand, query, ok := brandAndQuery(c)
	if !ok {
		return badRequest(c, "brand and query are required")
	}

	trends, err := h.store.GetPositionTrends(c.UserContext(), brand, query, c.QueryInt("hours", temporal.DefaultTrendHours))
	if err != nil {
		return respondError(c, err, "compute position trends")
	}

	return c.JSON(fiber.Map{
		"brand":  brand,
		"query":  query,
		"trends": trends,
	})
}

func (h *AnalyticsHandler) TrendAnalysis(c *fiber.Ctx) error {
	brand, query, ok := brandAndQuery(c)
	if !ok {
		return badRequest(c, "brand and query are required")
	}

	analysis, err := h.store.AnalyzeTrends(c.UserContext(), brand, query, c.QueryInt("hours", temporal.DefaultTrendHours))
	if err != nil {
		return respondError(c, err, "analyze trends")
	}

	return c.JSON(analysis)
}

func (h *AnalyticsHandler) Consistency(c *fiber.Ctx) error {
	brand, query, ok := brandAndQuery(c)
	if !ok {
		return badRequest(c, "brand and query are required")
	}

	report, err := h.store.GetConsistencyReport(c.UserContext(), brand, query, c.QueryInt("days", temporal.DefaultConsistencyDays))
	if err != nil {
		return respondError(c, err, "compute consistency report")
	}

	return c.JSON(fiber.Map{
		"brand":  brand,
		"query":  query,
		"report": report,
	})
}
