package temporal

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/events"
	"github.com/aeo-tracker/backend/internal/metrics"
	"github.com/aeo-tracker/backend/internal/storage/models"
	"github.com/aeo-tracker/backend/internal/storage/slots"
	"github.com/aeo-tracker/backend/pkg/logger"
)

// SaveMonitoringSettings upserts by exact (brand, query, website): a match
// is replaced in place, anything else is appended.
func (s *Store) SaveMonitoringSettings(ctx context.Context, settings models.MonitoringSettings) error {
	defer observe("save_monitoring_settings", time.Now())

	if settings.Brand == "" || settings.Query == "" {
		return invalid("brand and query are required")
	}
	if _, err := settings.Frequency.Interval(); err != nil {
		return invalid("%v", err)
	}
	if settings.AlertThreshold < 0 {
		return invalid("alert threshold must not be negative")
	}
	if settings.CreatedAt == "" {
		settings.CreatedAt = models.FormatTimestamp(s.now())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := loadSlot[models.MonitoringSettings](ctx, s, slots.MonitoringSettingsKey)
	if err != nil {
		return err
	}

	replaced := false
	for i := range existing {
		if existing[i].SameTarget(settings) {
			existing[i] = settings
			replaced = true
			break
		}
	}
	if !replaced {
		existing = append(existing, settings)
	}

	if err := s.writeSlot(ctx, slots.MonitoringSettingsKey, existing); err != nil {
		return err
	}

	metrics.RecordsSaved.WithLabelValues("monitoring_settings").Inc()
	metrics.CollectionSize.WithLabelValues("monitoring_settings").Set(float64(len(existing)))
	logger.Info("Monitoring settings saved",
		zap.String("brand", settings.Brand),
		zap.String("query", settings.Query),
		zap.String("frequency", string(settings.Frequency)),
		zap.Bool("active", settings.IsActive),
		zap.Bool("replaced", replaced),
	)
	s.publish(events.MonitoringSettingsSaved, settings)

	return nil
}

// GetMonitoringSettings filters by brand substring (case-insensitive) and
// active flag. Order is storage order.
func (s *Store) GetMonitoringSettings(ctx context.Context, filter models.MonitoringFilter) ([]models.MonitoringSettings, error) {
	defer observe("get_monitoring_settings", time.Now())

	settings, err := loadSlot[models.MonitoringSettings](ctx, s, slots.MonitoringSettingsKey)
	if err != nil {
		return nil, err
	}

	brand := strings.ToLower(filter.Brand)
	out := make([]models.MonitoringSettings, 0, len(settings))
	for _, m := range settings {
		if brand != "" && !strings.Contains(strings.ToLower(m.Brand), brand) {
			continue
		}
		if filter.IsActive != nil && m.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, m)
	}

	return out, nil
}

// MarkMonitoringRun stamps last_run on the stored settings for target and
// leaves every other field as currently stored, so edits saved while a run
// was in flight survive. It reports false when the settings no longer exist.
func (s *Store) MarkMonitoringRun(ctx context.Context, target models.MonitoringSettings, at string) (bool, error) {
	defer observe("mark_monitoring_run", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := loadSlot[models.MonitoringSettings](ctx, s, slots.MonitoringSettingsKey)
	if err != nil {
		return false, err
	}

	for i := range existing {
		if !existing[i].SameTarget(target) {
			continue
		}

		stamp := at
		existing[i].LastRun = &stamp
		if err := s.writeSlot(ctx, slots.MonitoringSettingsKey, existing); err != nil {
			return false, err
		}
		s.publish(events.MonitoringSettingsSaved, existing[i])
		return true, nil
	}

	return false, nil
}
