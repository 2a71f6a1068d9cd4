package temporal

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/aeo-tracker/backend/internal/storage/models"
)

// GetPositionTrends summarises, per LLM, how the brand's position moved
// over the last timeRangeHours. Every roster LLM is reported, zeroed when it
// has no records in range; LLMs outside the roster that do have records
// follow in the order they were first seen.
func (s *Store) GetPositionTrends(ctx context.Context, brand, query string, timeRangeHours int) ([]models.PositionTrend, error) {
	defer observe("get_position_trends", time.Now())

	if timeRangeHours <= 0 {
		timeRangeHours = DefaultTrendHours
	}
	timeRangeHours = min(timeRangeHours, MaxWindowHours)
	from := models.FormatTimestamp(s.now().Add(-time.Duration(timeRangeHours) * time.Hour))

	records, err := s.GetPositionRecords(ctx, models.PositionFilter{
		Brand:    brand,
		Query:    query,
		FromDate: from,
	})
	if err != nil {
		return nil, err
	}

	positions := make(map[string][]int)
	order := s.Roster()
	inRoster := make(map[string]bool, len(order))
	for _, llm := range order {
		inRoster[llm] = true
	}
	for _, r := range records {
		if !inRoster[r.LLM] {
			inRoster[r.LLM] = true
			order = append(order, r.LLM)
		}
		positions[r.LLM] = append(positions[r.LLM], r.Position)
	}

	trends := make([]models.PositionTrend, 0, len(order))
	for _, llm := range order {
		trends = append(trends, trendFor(llm, positions[llm]))
	}

	return trends, nil
}

// trendFor expects positions in chronological order.
func trendFor(llm string, positions []int) models.PositionTrend {
	if len(positions) == 0 {
		return models.PositionTrend{LLM: llm, Trend: models.TrendStable}
	}

	first := positions[0]
	current := positions[len(positions)-1]
	sum := 0
	for _, p := range positions {
		sum += p
	}

	// Lower numbers rank higher, so a positive change is an improvement.
	change := first - current
	trend := models.TrendStable
	switch {
	case math.Abs(float64(change)) < 0.5:
	case change > 0:
		trend = models.TrendUp
	default:
		trend = models.TrendDown
	}

	if change < 0 {
		change = -change
	}

	return models.PositionTrend{
		LLM:             llm,
		Trend:           trend,
		Change:          change,
		CurrentPosition: current,
		AveragePosition: round1(float64(sum) / float64(len(positions))),
	}
}

// GetConsistencyReport summarises the variability tests of the last days
// for each roster LLM. The most common position is the mode of every raw
// sample; on a tie the value whose count was started first wins, walking
// tests most recent first and samples 1, 2, 3.
func (s *Store) GetConsistencyReport(ctx context.Context, brand, query string, days int) ([]models.ConsistencySummary, error) {
	defer observe("get_consistency_report", time.Now())

	if days <= 0 {
		days = DefaultConsistencyDays
	}
	days = min(days, MaxWindowDays)
	from := models.FormatTimestamp(s.now().AddDate(0, 0, -days))

	tests, err := s.GetVariabilityTests(ctx, models.VariabilityFilter{
		Brand:    brand,
		Query:    query,
		FromDate: from,
	})
	if err != nil {
		return nil, err
	}

	report := make([]models.ConsistencySummary, 0, len(s.roster))
	for _, llm := range s.roster {
		var results []models.VariabilityResult
		for _, t := range tests {
			for _, r := range t.Results {
				if r.LLM == llm {
					results = append(results, r)
				}
			}
		}
		report = append(report, consistencyFor(llm, results))
	}

	return report, nil
}

func consistencyFor(llm string, results []models.VariabilityResult) models.ConsistencySummary {
	if len(results) == 0 {
		return models.ConsistencySummary{LLM: llm}
	}

	scoreSum, rangeSum := 0, 0
	var samples []int
	for _, r := range results {
		scoreSum += r.ConsistencyScore
		rangeSum += r.VariationRange
		samples = append(samples, r.Position1, r.Position2, r.Position3)
	}
	n := float64(len(results))

	return models.ConsistencySummary{
		LLM:                llm,
		ConsistencyScore:   int(math.Round(float64(scoreSum) / n)),
		PositionVariance:   round1(float64(rangeSum) / n),
		MostCommonPosition: mode(samples),
	}
}

// mode returns the most frequent value. Ties go to the value first seen.
func mode(values []int) int {
	counts := make(map[int]int)
	var seen []int
	for _, v := range values {
		if counts[v] == 0 {
			seen = append(seen, v)
		}
		counts[v]++
	}

	best, bestCount := 0, 0
	for _, v := range seen {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

// AnalyzeTrends condenses the per-LLM trends into the dashboard summary.
// Roster LLMs without data in range are left out.
func (s *Store) AnalyzeTrends(ctx context.Context, brand, query string, timeRangeHours int) (models.TrendAnalysis, error) {
	defer observe("analyze_trends", time.Now())

	all, err := s.GetPositionTrends(ctx, brand, query, timeRangeHours)
	if err != nil {
		return models.TrendAnalysis{}, err
	}

	trends := make([]models.PositionTrend, 0, len(all))
	for _, t := range all {
		if t.CurrentPosition > 0 {
			trends = append(trends, t)
		}
	}

	analysis := models.TrendAnalysis{
		OverallTrend: models.TrendStable,
		Predictions:  make([]models.Prediction, 0, len(trends)),
	}
	if len(trends) == 0 {
		return analysis, nil
	}

	ups, downs, changeSum := 0, 0, 0
	mover, stable := trends[0], trends[0]
	for _, t := range trends {
		switch t.Trend {
		case models.TrendUp:
			ups++
		case models.TrendDown:
			downs++
		}
		if t.Change > mover.Change {
			mover = t
		}
		if t.Change < stable.Change {
			stable = t
		}
		changeSum += t.Change

		analysis.Predictions = append(analysis.Predictions, models.Prediction{
			LLM:               t.LLM,
			PredictedPosition: int(math.Round(t.AveragePosition)),
			Confidence:        clamp(95-t.Change*10, 60, 95),
		})
	}

	switch {
	case ups > downs:
		analysis.OverallTrend = models.TrendUp
	case downs > ups:
		analysis.OverallTrend = models.TrendDown
	}
	analysis.BiggestMover = models.Mover{LLM: mover.LLM, Change: mover.Change, Direction: mover.Trend}
	analysis.MostStable = stable.LLM
	analysis.VolatilityScore = round1(float64(changeSum) / float64(len(trends)))

	sort.SliceStable(analysis.Predictions, func(i, j int) bool {
		return analysis.Predictions[i].PredictedPosition < analysis.Predictions[j].PredictedPosition
	})

	return analysis, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
