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

const (
	minConsistencyScore = 40
	rangePenalty        = 20
)

// ScoreVariability builds the result for one LLM from its three positions.
// The score is 100 minus 20 per position of spread, floored at 40, so it
// never increases as the spread grows.
func ScoreVariability(llm string, p1, p2, p3 int) models.VariabilityResult {
	spread := variationRange(p1, p2, p3)
	return models.VariabilityResult{
		LLM:              llm,
		Position1:        p1,
		Position2:        p2,
		Position3:        p3,
		ConsistencyScore: consistencyForRange(spread),
		VariationRange:   spread,
	}
}

// OverallConsistency is the floored mean of the per-LLM scores.
func OverallConsistency(results []models.VariabilityResult) int {
	if len(results) == 0 {
		return 0
	}
	sum := 0
	for _, r := range results {
		sum += r.ConsistencyScore
	}
	return sum / len(results)
}

func consistencyForRange(spread int) int {
	score := 100 - spread*rangePenalty
	if score < minConsistencyScore {
		return minConsistencyScore
	}
	return score
}

func variationRange(p1, p2, p3 int) int {
	return max(p1, p2, p3) - min(p1, p2, p3)
}

// SaveVariabilityTest assigns an id and appends the test, evicting the
// oldest tests beyond the retention cap. Derived fields left at zero are
// filled in; supplied scores are kept.
func (s *Store) SaveVariabilityTest(ctx context.Context, test models.VariabilityTest) (models.VariabilityTest, error) {
	defer observe("save_variability_test", time.Now())

	if err := s.normalizeVariability(&test); err != nil {
		return models.VariabilityTest{}, err
	}
	test.ID = utils.NewRecordID("var", s.now())

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := loadSlot[models.VariabilityTest](ctx, s, slots.VariabilityTestsKey)
	if err != nil {
		return models.VariabilityTest{}, err
	}

	existing = append(existing, test)
	if excess := len(existing) - s.variabilityCap; excess > 0 {
		existing = existing[excess:]
		metrics.RecordsTrimmed.WithLabelValues("variability_test").Add(float64(excess))
	}

	if err := s.writeSlot(ctx, slots.VariabilityTestsKey, existing); err != nil {
		return models.VariabilityTest{}, err
	}

	metrics.RecordsSaved.WithLabelValues("variability_test").Inc()
	metrics.CollectionSize.WithLabelValues("variability_test").Set(float64(len(existing)))
	logger.Debug("Variability test saved",
		zap.String("id", test.ID),
		zap.String("brand", test.Brand),
		zap.Int("overall_consistency", test.OverallConsistency),
	)
	s.publish(events.VariabilityTestSaved, test)

	return test, nil
}

// GetVariabilityTests returns matching tests most recent first. Limit keeps
// the N most recent.
func (s *Store) GetVariabilityTests(ctx context.Context, filter models.VariabilityFilter) ([]models.VariabilityTest, error) {
	defer observe("get_variability_tests", time.Now())

	tests, err := loadSlot[models.VariabilityTest](ctx, s, slots.VariabilityTestsKey)
	if err != nil {
		return nil, err
	}

	brand := strings.ToLower(filter.Brand)
	query := strings.ToLower(filter.Query)
	from, to := normalizeBound(filter.FromDate), normalizeBound(filter.ToDate)

	out := make([]models.VariabilityTest, 0, len(tests))
	for _, t := range tests {
		if brand != "" && !strings.Contains(strings.ToLower(t.Brand), brand) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(t.Query), query) {
			continue
		}
		if from != "" && t.Timestamp < from {
			continue
		}
		if to != "" && t.Timestamp > to {
			continue
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out, nil
}

func (s *Store) normalizeVariability(t *models.VariabilityTest) error {
	t.Brand = strings.TrimSpace(t.Brand)
	t.Query = strings.TrimSpace(t.Query)

	if t.Brand == "" || t.Query == "" {
		return invalid("brand and query are required")
	}
	if len(t.Results) == 0 {
		return invalid("at least one llm result is required")
	}

	results := make([]models.VariabilityResult, len(t.Results))
	for i, r := range t.Results {
		if strings.TrimSpace(r.LLM) == "" {
			return invalid("result %d has no llm", i)
		}
		if r.Position1 < 1 || r.Position2 < 1 || r.Position3 < 1 {
			return invalid("result %s needs three positions of at least 1", r.LLM)
		}
		if r.VariationRange == 0 {
			r.VariationRange = variationRange(r.Position1, r.Position2, r.Position3)
		}
		if r.ConsistencyScore == 0 {
			r.ConsistencyScore = consistencyForRange(r.VariationRange)
		}
		if r.ConsistencyScore < 0 || r.ConsistencyScore > 100 {
			return invalid("result %s consistency score %d is outside 0..100", r.LLM, r.ConsistencyScore)
		}
		results[i] = r
	}
	t.Results = results

	if t.OverallConsistency == 0 {
		t.OverallConsistency = OverallConsistency(results)
	}

	ts, err := s.normalizeTimestamp(t.Timestamp)
	if err != nil {
		return err
	}
	t.Timestamp = ts

	return nil
}
