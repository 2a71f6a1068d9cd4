package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/aeo-tracker/backend/internal/events"
	"github.com/aeo-tracker/backend/internal/metrics"
	"github.com/aeo-tracker/backend/internal/temporal"
)

type Deps struct {
	Store *temporal.Store
	Hub   *events.Hub
	// Tracker is optional; leave it nil (not a typed nil) to disable the
	// probing routes.
	Tracker Tracker
}

// RegisterRoutes mounts the API on router, normally the /api/v1 group.
func RegisterRoutes(router fiber.Router, d Deps) {
	records := NewRecordsHandler(d.Store)
	analytics := NewAnalyticsHandler(d.Store)
	data := NewDataHandler(d.Store)
	track := NewTrackingHandler(d.Tracker)

	router.Post("/positions", records.SavePosition)
	router.Get("/positions", records.ListPositions)

	router.Post("/variability", records.SaveVariability)
	router.Get("/variability", records.ListVariability)
	router.Post("/variability/run", track.RunVariability)

	router.Put("/monitoring", records.SaveMonitoring)
	router.Get("/monitoring", records.ListMonitoring)

	router.Get("/trends", analytics.Trends)
	router.Get("/trends/analysis", analytics.TrendAnalysis)
	router.Get("/consistency", analytics.Consistency)

	router.Post("/track", track.Track)

	router.Get("/data/export", data.Export)
	router.Post("/data/import", data.Import)
	router.Delete("/data", data.Clear)

	router.Get("/stats", data.Stats)
	router.Get("/health", data.Health)
	router.Get("/ready", data.Ready)

	router.Get("/metrics", metrics.MetricsHandler())

	if d.Hub != nil {
		feed := NewFeedHandler(d.Hub)
		router.Get("/ws/feed", feed.Upgrade, websocket.New(feed.HandleConnection))
	}
}
