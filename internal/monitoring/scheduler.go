// Package monitoring re-runs tracked queries on their configured frequency
// and raises alerts when an LLM moves a brand by more than the threshold.
package monitoring

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/events"
	"github.com/aeo-tracker/backend/internal/metrics"
	"github.com/aeo-tracker/backend/internal/storage/models"
	"github.com/aeo-tracker/backend/internal/tracking"
	"github.com/aeo-tracker/backend/pkg/logger"
	"github.com/aeo-tracker/backend/pkg/utils"
)

type Prober interface {
	TrackPositions(ctx context.Context, target tracking.Target) ([]models.PositionRecord, error)
}

type Store interface {
	GetMonitoringSettings(ctx context.Context, filter models.MonitoringFilter) ([]models.MonitoringSettings, error)
	MarkMonitoringRun(ctx context.Context, target models.MonitoringSettings, at string) (bool, error)
	GetPositionRecords(ctx context.Context, filter models.PositionFilter) ([]models.PositionRecord, error)
}

type Notifier interface {
	Publish(eventType string, payload interface{})
}

type Alert struct {
	Brand     string `json:"brand"`
	Query     string `json:"query"`
	Website   string `json:"website"`
	LLM       string `json:"llm"`
	Previous  int    `json:"previous_position"`
	Current   int    `json:"current_position"`
	Threshold int    `json:"alert_threshold"`
	At        string `json:"at"`
}

// Change is positive when the brand moved up the ranking.
func (a Alert) Change() int {
	return a.Previous - a.Current
}

type Scheduler struct {
	store    Store
	prober   Prober
	notifier Notifier
	tick     time.Duration
	now      func() time.Time
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

func NewScheduler(store Store, prober Prober, tick time.Duration, opts ...Option) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	s := &Scheduler{
		store:  store,
		prober: prober,
		tick:   tick,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run checks for due settings immediately and then on every tick until ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info("Monitoring scheduler started", zap.Duration("tick", s.tick))

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		if _, err := s.RunDue(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Monitoring pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			logger.Info("Monitoring scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunDue probes every active setting whose last run is older than its
// frequency, stamps last_run and returns the alerts raised.
func (s *Scheduler) RunDue(ctx context.Context) ([]Alert, error) {
	active := true
	settings, err := s.store.GetMonitoringSettings(ctx, models.MonitoringFilter{IsActive: &active})
	if err != nil {
		return nil, err
	}

	now := s.now()
	var alerts []Alert

	for _, setting := range settings {
		if ctx.Err() != nil {
			return alerts, ctx.Err()
		}
		if !s.due(setting, now) {
			continue
		}

		raised, err := s.runOne(ctx, setting, now)
		if err != nil {
			return alerts, err
		}
		alerts = append(alerts, raised...)
	}

	return alerts, nil
}

func (s *Scheduler) due(setting models.MonitoringSettings, now time.Time) bool {
	interval, err := setting.Frequency.Interval()
	if err != nil {
		logger.Warn("Skipping monitor with unknown frequency",
			zap.String("brand", setting.Brand),
			zap.String("frequency", string(setting.Frequency)),
		)
		return false
	}
	if setting.LastRun == nil {
		return true
	}
	last, err := time.Parse(models.TimestampLayout, *setting.LastRun)
	if err != nil {
		return true
	}
	return !now.Before(last.Add(interval))
}

// runOne probes a single setting. A failed probe is logged and still
// stamps last_run so a broken provider is not hammered every tick; only a
// failure to stamp the run is returned.
func (s *Scheduler) runOne(ctx context.Context, setting models.MonitoringSettings, now time.Time) ([]Alert, error) {
	previous, err := s.latestPositions(ctx, setting)
	if err != nil {
		return nil, err
	}

	target := tracking.Target{Brand: setting.Brand, Query: setting.Query, Website: setting.Website}
	key := utils.TargetKey(setting.Brand, setting.Query, setting.Website)
	records, probeErr := s.prober.TrackPositions(ctx, target)

	stamp := models.FormatTimestamp(now)
	found, err := s.store.MarkMonitoringRun(ctx, setting, stamp)
	if err != nil {
		return nil, err
	}
	if !found {
		logger.Info("Monitoring settings removed during run",
			zap.String("target", key),
			zap.String("brand", setting.Brand),
		)
	}

	if probeErr != nil {
		metrics.MonitoringRuns.WithLabelValues("error").Inc()
		logger.Warn("Monitored query failed",
			zap.String("target", key),
			zap.String("brand", setting.Brand),
			zap.String("query", setting.Query),
			zap.Error(probeErr),
		)
		return nil, nil
	}
	metrics.MonitoringRuns.WithLabelValues("ok").Inc()

	var alerts []Alert
	for _, r := range records {
		prev, ok := previous[r.LLM]
		if !ok || setting.AlertThreshold <= 0 {
			continue
		}
		if abs(prev-r.Position) < setting.AlertThreshold {
			continue
		}

		alert := Alert{
			Brand:     setting.Brand,
			Query:     setting.Query,
			Website:   setting.Website,
			LLM:       r.LLM,
			Previous:  prev,
			Current:   r.Position,
			Threshold: setting.AlertThreshold,
			At:        stamp,
		}
		alerts = append(alerts, alert)

		metrics.MonitoringAlerts.Inc()
		logger.Warn("Position change alert",
			zap.String("target", key),
			zap.String("brand", alert.Brand),
			zap.String("query", alert.Query),
			zap.String("llm", alert.LLM),
			zap.Int("previous", alert.Previous),
			zap.Int("current", alert.Current),
		)
		if s.notifier != nil {
			s.notifier.Publish(events.MonitoringAlert, alert)
		}
	}

	logger.Debug("Monitored query run",
		zap.String("target", key),
		zap.String("brand", setting.Brand),
		zap.String("query", setting.Query),
		zap.Int("records", len(records)),
		zap.Int("alerts", len(alerts)),
	)

	return alerts, nil
}

// latestPositions maps each LLM to its most recent position for exactly this
// brand and query.
func (s *Scheduler) latestPositions(ctx context.Context, setting models.MonitoringSettings) (map[string]int, error) {
	records, err := s.store.GetPositionRecords(ctx, models.PositionFilter{Brand: setting.Brand, Query: setting.Query})
	if err != nil {
		return nil, err
	}

	latest := make(map[string]int)
	// Records come back oldest first, so later entries overwrite earlier ones.
	for _, r := range records {
		if !strings.EqualFold(r.Brand, setting.Brand) || !strings.EqualFold(r.Query, setting.Query) {
			continue
		}
		latest[r.LLM] = r.Position
	}
	return latest, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
