package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/pkg/logger"
)

const (
	PositionRecordSaved     = "position_record.saved"
	VariabilityTestSaved    = "variability_test.saved"
	MonitoringSettingsSaved = "monitoring_settings.saved"
	DataCleared             = "data.cleared"
	DataImported            = "data.imported"
	MonitoringAlert         = "monitoring.alert"
)

type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

// Hub fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscribe returns a receive channel and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.buffer)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) Publish(eventType string, payload interface{}) {
	evt := Event{Type: eventType, Payload: payload, At: time.Now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			logger.Debug("Dropping event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("type", eventType),
			)
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
