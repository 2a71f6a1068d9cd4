package temporal

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/events"
	"github.com/aeo-tracker/backend/internal/metrics"
	"github.com/aeo-tracker/backend/internal/storage/models"
	"github.com/aeo-tracker/backend/internal/storage/slots"
	"github.com/aeo-tracker/backend/pkg/logger"
	"github.com/aeo-tracker/backend/pkg/utils"
)

// displayDateLayout matches the day/month/year labels the dashboard shows.
const displayDateLayout = "02/01/2006"

// SavePositionRecord assigns an id, appends the record and evicts the oldest
// records beyond the retention cap. Any id on the input is ignored.
func (s *Store) SavePositionRecord(ctx context.Context, record models.PositionRecord) (models.PositionRecord, error) {
	defer observe("save_position_record", time.Now())

	if err := s.normalizePosition(&record); err != nil {
		return models.PositionRecord{}, err
	}
	record.ID = utils.NewRecordID("pos", s.now())

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := loadSlot[models.PositionRecord](ctx, s, slots.PositionRecordsKey)
	if err != nil {
		return models.PositionRecord{}, err
	}

	existing = append(existing, record)
	if excess := len(existing) - s.positionCap; excess > 0 {
		existing = existing[excess:]
		metrics.RecordsTrimmed.WithLabelValues("position_record").Add(float64(excess))
		logger.Debug("Position records trimmed", zap.Int("evicted", excess))
	}

	if err := s.writeSlot(ctx, slots.PositionRecordsKey, existing); err != nil {
		return models.PositionRecord{}, err
	}

	metrics.RecordsSaved.WithLabelValues("position_record").Inc()
	metrics.CollectionSize.WithLabelValues("position_record").Set(float64(len(existing)))
	logger.Debug("Position record saved",
		zap.String("id", record.ID),
		zap.String("brand", record.Brand),
		zap.String("llm", record.LLM),
		zap.Int("position", record.Position),
	)
	s.publish(events.PositionRecordSaved, record)

	return record, nil
}

// GetPositionRecords returns matching records in ascending timestamp order.
// Limit keeps the most recent N after every other filter.
func (s *Store) GetPositionRecords(ctx context.Context, filter models.PositionFilter) ([]models.PositionRecord, error) {
	defer observe("get_position_records", time.Now())

	records, err := loadSlot[models.PositionRecord](ctx, s, slots.PositionRecordsKey)
	if err != nil {
		return nil, err
	}

	brand := strings.ToLower(filter.Brand)
	query := strings.ToLower(filter.Query)
	from, to := normalizeBound(filter.FromDate), normalizeBound(filter.ToDate)

	out := make([]models.PositionRecord, 0, len(records))
	for _, r := range records {
		if brand != "" && !strings.Contains(strings.ToLower(r.Brand), brand) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(r.Query), query) {
			continue
		}
		if filter.LLM != "" && r.LLM != filter.LLM {
			continue
		}
		if from != "" && r.Timestamp < from {
			continue
		}
		if to != "" && r.Timestamp > to {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}

	return out, nil
}

func (s *Store) normalizePosition(r *models.PositionRecord) error {
	r.Brand = strings.TrimSpace(r.Brand)
	r.Query = strings.TrimSpace(r.Query)
	r.LLM = strings.TrimSpace(r.LLM)

	if r.Brand == "" || r.Query == "" || r.LLM == "" {
		return invalid("brand, query and llm are required")
	}
	if r.Position < 1 {
		return invalid("position must be at least 1, got %d", r.Position)
	}
	if r.Mentions < 0 {
		return invalid("mentions must not be negative")
	}
	if r.Sentiment == "" {
		r.Sentiment = models.SentimentNeutral
	}
	if !r.Sentiment.Valid() {
		return invalid("unknown sentiment %q", r.Sentiment)
	}

	ts, err := s.normalizeTimestamp(r.Timestamp)
	if err != nil {
		return err
	}
	r.Timestamp = ts
	if r.Date == "" {
		parsed, _ := time.Parse(models.TimestampLayout, ts)
		r.Date = parsed.Format(displayDateLayout)
	}

	return nil
}

// normalizeTimestamp fills an empty timestamp with the store clock and
// rewrites any RFC 3339 input into the fixed-width stored layout.
func (s *Store) normalizeTimestamp(ts string) (string, error) {
	if ts == "" {
		return models.FormatTimestamp(s.now()), nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "", invalid("timestamp %q is not ISO-8601", ts)
	}
	return models.FormatTimestamp(parsed), nil
}

// normalizeBound rewrites an RFC 3339 filter bound into the stored layout so
// the same instant compares equal. Anything else, such as a date prefix,
// compares as given.
func normalizeBound(bound string) string {
	if bound == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339Nano, bound)
	if err != nil {
		return bound
	}
	return models.FormatTimestamp(parsed)
}
