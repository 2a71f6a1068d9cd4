package temporal

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/events"
	"github.com/aeo-tracker/backend/internal/metrics"
	"github.com/aeo-tracker/backend/internal/storage/models"
	"github.com/aeo-tracker/backend/internal/storage/slots"
	"github.com/aeo-tracker/backend/pkg/logger"
)

// ClearOldData drops position records and variability tests older than
// daysToKeep. Monitoring settings are never touched.
func (s *Store) ClearOldData(ctx context.Context, daysToKeep int) (models.ClearResult, error) {
	defer observe("clear_old_data", time.Now())

	if daysToKeep <= 0 {
		daysToKeep = DefaultRetentionDays
	}
	daysToKeep = min(daysToKeep, MaxWindowDays)
	cutoff := models.FormatTimestamp(s.now().AddDate(0, 0, -daysToKeep))
	result := models.ClearResult{Cutoff: cutoff}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Both slots are read before either is written so a failed read
	// leaves everything in place.
	positions, err := loadSlot[models.PositionRecord](ctx, s, slots.PositionRecordsKey)
	if err != nil {
		return result, err
	}
	tests, err := loadSlot[models.VariabilityTest](ctx, s, slots.VariabilityTestsKey)
	if err != nil {
		return result, err
	}

	recentPositions := make([]models.PositionRecord, 0, len(positions))
	for _, p := range positions {
		if p.Timestamp >= cutoff {
			recentPositions = append(recentPositions, p)
		}
	}
	recentTests := make([]models.VariabilityTest, 0, len(tests))
	for _, t := range tests {
		if t.Timestamp >= cutoff {
			recentTests = append(recentTests, t)
		}
	}

	if err := s.writeSlot(ctx, slots.PositionRecordsKey, recentPositions); err != nil {
		return result, err
	}
	if err := s.writeSlot(ctx, slots.VariabilityTestsKey, recentTests); err != nil {
		// Put the positions back so the call fails as a whole.
		if rollbackErr := s.writeSlot(ctx, slots.PositionRecordsKey, positions); rollbackErr != nil {
			logger.Error("Failed to restore position records after partial clear", zap.Error(rollbackErr))
		}
		return result, err
	}
	result.PositionRecordsRemoved = len(positions) - len(recentPositions)
	result.VariabilityTestsRemoved = len(tests) - len(recentTests)

	metrics.RecordsCleared.WithLabelValues("position_record").Add(float64(result.PositionRecordsRemoved))
	metrics.RecordsCleared.WithLabelValues("variability_test").Add(float64(result.VariabilityTestsRemoved))
	metrics.CollectionSize.WithLabelValues("position_record").Set(float64(len(recentPositions)))
	metrics.CollectionSize.WithLabelValues("variability_test").Set(float64(len(recentTests)))

	logger.Info("Old data cleared",
		zap.String("cutoff", cutoff),
		zap.Int("position_records_removed", result.PositionRecordsRemoved),
		zap.Int("variability_tests_removed", result.VariabilityTestsRemoved),
	)
	s.publish(events.DataCleared, result)

	return result, nil
}

// ExportData snapshots all three collections in stored order, which is
// the order retention evicts from.
func (s *Store) ExportData(ctx context.Context) (models.Snapshot, error) {
	defer observe("export_data", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	positions, err := loadSlot[models.PositionRecord](ctx, s, slots.PositionRecordsKey)
	if err != nil {
		return models.Snapshot{}, err
	}
	tests, err := loadSlot[models.VariabilityTest](ctx, s, slots.VariabilityTestsKey)
	if err != nil {
		return models.Snapshot{}, err
	}
	settings, err := loadSlot[models.MonitoringSettings](ctx, s, slots.MonitoringSettingsKey)
	if err != nil {
		return models.Snapshot{}, err
	}

	return models.Snapshot{
		PositionRecords:    positions,
		VariabilityTests:   tests,
		MonitoringSettings: settings,
		ExportedAt:         models.FormatTimestamp(s.now()),
	}, nil
}

// ImportData replaces each collection present in the snapshot and leaves
// absent (nil) ones alone. Position records and variability tests are
// stored oldest first, whatever order the snapshot lists them in, so later
// saves still evict the oldest entries.
func (s *Store) ImportData(ctx context.Context, snapshot models.Snapshot) error {
	defer observe("import_data", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	imported := make(map[string]int)

	if snapshot.PositionRecords != nil {
		positions := append([]models.PositionRecord(nil), snapshot.PositionRecords...)
		sort.SliceStable(positions, func(i, j int) bool {
			return positions[i].Timestamp < positions[j].Timestamp
		})
		if err := s.writeSlot(ctx, slots.PositionRecordsKey, positions); err != nil {
			return err
		}
		imported["position_records"] = len(snapshot.PositionRecords)
		metrics.CollectionSize.WithLabelValues("position_record").Set(float64(len(snapshot.PositionRecords)))
	}
	if snapshot.VariabilityTests != nil {
		tests := append([]models.VariabilityTest(nil), snapshot.VariabilityTests...)
		sort.SliceStable(tests, func(i, j int) bool {
			return tests[i].Timestamp < tests[j].Timestamp
		})
		if err := s.writeSlot(ctx, slots.VariabilityTestsKey, tests); err != nil {
			return err
		}
		imported["variability_tests"] = len(snapshot.VariabilityTests)
		metrics.CollectionSize.WithLabelValues("variability_test").Set(float64(len(snapshot.VariabilityTests)))
	}
	if snapshot.MonitoringSettings != nil {
		if err := s.writeSlot(ctx, slots.MonitoringSettingsKey, snapshot.MonitoringSettings); err != nil {
			return err
		}
		imported["monitoring_settings"] = len(snapshot.MonitoringSettings)
		metrics.CollectionSize.WithLabelValues("monitoring_settings").Set(float64(len(snapshot.MonitoringSettings)))
	}

	logger.Info("Data imported", zap.Any("collections", imported))
	s.publish(events.DataImported, imported)

	return nil
}

func (s *Store) Stats(ctx context.Context) (models.StoreStats, error) {
	positions, err := loadSlot[models.PositionRecord](ctx, s, slots.PositionRecordsKey)
	if err != nil {
		return models.StoreStats{}, err
	}
	tests, err := loadSlot[models.VariabilityTest](ctx, s, slots.VariabilityTestsKey)
	if err != nil {
		return models.StoreStats{}, err
	}
	settings, err := loadSlot[models.MonitoringSettings](ctx, s, slots.MonitoringSettingsKey)
	if err != nil {
		return models.StoreStats{}, err
	}

	stats := models.StoreStats{
		PositionRecords:    len(positions),
		VariabilityTests:   len(tests),
		MonitoringSettings: len(settings),
	}
	for _, m := range settings {
		if m.IsActive {
			stats.ActiveMonitors++
		}
	}
	return stats, nil
}
