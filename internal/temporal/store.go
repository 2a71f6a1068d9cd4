// Package temporal keeps the time-stamped tracking history behind the
// dashboard: position records, variability tests and monitoring settings,
// plus the trend and consistency views derived from them.
//
// Every mutating call reads the whole collection from its slot, changes it
// in memory and writes it back. A mutex serialises those cycles inside one
// process; two processes sharing a backend still race, last writer wins.
package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/metrics"
	"github.com/aeo-tracker/backend/internal/storage/slots"
	"github.com/aeo-tracker/backend/pkg/logger"
)

var (
	// ErrPersistenceUnavailable wraps every backend read or write failure,
	// including quota exhaustion.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	// ErrInvalidRecord is returned for input that cannot be stored.
	ErrInvalidRecord = errors.New("invalid record")
)

const (
	DefaultPositionCap    = 1000
	DefaultVariabilityCap = 100

	DefaultTrendHours      = 168
	DefaultConsistencyDays = 30
	DefaultRetentionDays   = 90

	// Windows are capped at a century so hour and day counts from query
	// strings cannot overflow a time.Duration.
	MaxWindowDays  = 36500
	MaxWindowHours = MaxWindowDays * 24
)

// DefaultRoster is the ordered list of LLMs reported by the trend and
// consistency views even when they have no data.
var DefaultRoster = []string{"ChatGPT", "Claude", "Gemini", "Perplexity", "You.com"}

// Notifier receives an event after each successful mutation.
type Notifier interface {
	Publish(eventType string, payload interface{})
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithRoster(roster []string) Option {
	return func(s *Store) {
		if len(roster) > 0 {
			s.roster = append([]string(nil), roster...)
		}
	}
}

func WithPositionCap(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.positionCap = n
		}
	}
}

func WithVariabilityCap(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.variabilityCap = n
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

type Store struct {
	backend        slots.Backend
	now            func() time.Time
	roster         []string
	positionCap    int
	variabilityCap int
	notifier       Notifier

	mu sync.Mutex
}

func NewStore(backend slots.Backend, opts ...Option) *Store {
	s := &Store{
		backend:        backend,
		now:            time.Now,
		roster:         append([]string(nil), DefaultRoster...),
		positionCap:    DefaultPositionCap,
		variabilityCap: DefaultVariabilityCap,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Roster returns a copy of the configured LLM roster.
func (s *Store) Roster() []string {
	return append([]string(nil), s.roster...)
}

// loadSlot reads one collection. A missing slot and undecodable content both
// yield an empty, non-nil slice; only backend failures are errors.
func loadSlot[T any](ctx context.Context, s *Store, key string) ([]T, error) {
	data, err := s.backend.Load(ctx, key)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues(key, "read").Inc()
		return nil, fmt.Errorf("%w: failed to read %s: %w", ErrPersistenceUnavailable, key, err)
	}

	items := make([]T, 0)
	if len(data) == 0 {
		return items, nil
	}

	if err := json.Unmarshal(data, &items); err != nil {
		metrics.MalformedSlots.WithLabelValues(key).Inc()
		logger.Warn("Malformed slot content, treating as empty",
			zap.String("slot", key),
			zap.Int("bytes", len(data)),
			zap.Error(err),
		)
		return make([]T, 0), nil
	}
	if items == nil {
		items = make([]T, 0)
	}

	return items, nil
}

func (s *Store) writeSlot(ctx context.Context, key string, items interface{}) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	if err := s.backend.Store(ctx, key, data); err != nil {
		metrics.PersistenceFailures.WithLabelValues(key, "write").Inc()
		logger.Error("Failed to persist slot", zap.String("slot", key), zap.Error(err))
		return fmt.Errorf("%w: failed to write %s: %w", ErrPersistenceUnavailable, key, err)
	}

	return nil
}

func (s *Store) publish(eventType string, payload interface{}) {
	if s.notifier != nil {
		s.notifier.Publish(eventType, payload)
	}
}

func observe(op string, start time.Time) {
	metrics.StoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, fmt.Sprintf(format, args...))
}
