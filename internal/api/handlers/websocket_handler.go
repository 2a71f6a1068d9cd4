package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/events"
	"github.com/aeo-tracker/backend/pkg/logger"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 30 * time.Second
)

// FeedHandler streams store and monitoring events to dashboard clients.
// The feed is one-way; anything a client sends is discarded.
type FeedHandler struct {
	hub *events.Hub
}

func NewFeedHandler(hub *events.Hub) *FeedHandler {
	return &FeedHandler{
		hub: hub,
	}
}

// Upgrade rejects plain HTTP requests to the feed route.
func (h *FeedHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
		"error": "WebSocket upgrade required",
	})
}

func (h *FeedHandler) HandleConnection(c *websocket.Conn) {
	feed, cancel := h.hub.Subscribe()
	logger.Info("Feed client connected", zap.Int("subscribers", h.hub.Subscribers()))

	defer func() {
		cancel()
		c.Close()
		logger.Info("Feed client disconnected")
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.send(c, events.Event{Type: "feed.connected", At: time.Now().UTC()}); err != nil {
		return
	}

	ping := time.NewTicker(feedPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case evt, ok := <-feed:
			if !ok {
				return
			}
			if err := h.send(c, evt); err != nil {
				logger.Debug("Failed to write feed event", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = c.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *FeedHandler) send(c *websocket.Conn, evt events.Event) error {
	_ = c.SetWriteDeadline(time.Now().Add(feedWriteWait))
	return c.WriteJSON(evt)
}
