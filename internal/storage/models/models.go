package models

import (
	"fmt"
	"time"
)

// TimestampLayout is the UTC, fixed-precision ISO-8601 layout used for every
// stored timestamp. Fixed width keeps string order equal to time order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

type Frequency string

const (
	FrequencyHourly   Frequency = "hourly"
	FrequencyEvery4h  Frequency = "every_4h"
	FrequencyEvery12h Frequency = "every_12h"
	FrequencyDaily    Frequency = "daily"
)

// Interval returns how often a monitored query is re-run.
func (f Frequency) Interval() (time.Duration, error) {
	switch f {
	case FrequencyHourly:
		return time.Hour, nil
	case FrequencyEvery4h:
		return 4 * time.Hour, nil
	case FrequencyEvery12h:
		return 12 * time.Hour, nil
	case FrequencyDaily:
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown frequency %q", f)
}

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// PositionRecord is one observation of a brand's rank in one LLM's answer.
type PositionRecord struct {
	ID                string    `json:"id"`
	Timestamp         string    `json:"timestamp"`
	Date              string    `json:"date"`
	Brand             string    `json:"brand"`
	Query             string    `json:"query"`
	Website           string    `json:"website"`
	LLM               string    `json:"llm"`
	Position          int       `json:"position"`
	Mentions          int       `json:"mentions"`
	Accuracy          float64   `json:"accuracy"`
	Relevance         float64   `json:"relevance"`
	ContextQuality    string    `json:"context_quality"`
	CitationFrequency float64   `json:"citation_frequency"`
	Sentiment         Sentiment `json:"sentiment"`
}

// VariabilityResult holds the three positions one LLM returned for the same
// query plus the scores derived from them.
type VariabilityResult struct {
	LLM              string `json:"llm"`
	Position1        int    `json:"position_1"`
	Position2        int    `json:"position_2"`
	Position3        int    `json:"position_3"`
	ConsistencyScore int    `json:"consistency_score"`
	VariationRange   int    `json:"variation_range"`
}

func (r VariabilityResult) Positions() [3]int {
	return [3]int{r.Position1, r.Position2, r.Position3}
}

type VariabilityTest struct {
	ID                 string              `json:"id"`
	Timestamp          string              `json:"timestamp"`
	Brand              string              `json:"brand"`
	Query              string              `json:"query"`
	Website            string              `json:"website"`
	Results            []VariabilityResult `json:"results"`
	OverallConsistency int                 `json:"overall_consistency"`
}

// MonitoringSettings configures automatic re-runs for one
// (brand, query, website) triple.
type MonitoringSettings struct {
	Brand          string    `json:"brand"`
	Query          string    `json:"query"`
	Website        string    `json:"website"`
	Frequency      Frequency `json:"frequency"`
	AlertThreshold int       `json:"alert_threshold"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      string    `json:"created_at"`
	LastRun        *string   `json:"last_run"`
}

// SameTarget reports whether both settings address the same triple.
func (s MonitoringSettings) SameTarget(o MonitoringSettings) bool {
	return s.Brand == o.Brand && s.Query == o.Query && s.Website == o.Website
}

// PositionFilter narrows GetPositionRecords. Zero values mean "no filter".
type PositionFilter struct {
	Brand    string
	Query    string
	LLM      string
	FromDate string
	ToDate   string
	Limit    int
}

type VariabilityFilter struct {
	Brand    string
	Query    string
	FromDate string
	ToDate   string
	Limit    int
}

type MonitoringFilter struct {
	Brand    string
	IsActive *bool
}

type PositionTrend struct {
	LLM             string  `json:"llm"`
	Trend           Trend   `json:"trend"`
	Change          int     `json:"change"`
	CurrentPosition int     `json:"current_position"`
	AveragePosition float64 `json:"average_position"`
}

type ConsistencySummary struct {
	LLM                string  `json:"llm"`
	ConsistencyScore   int     `json:"consistency_score"`
	PositionVariance   float64 `json:"position_variance"`
	MostCommonPosition int     `json:"most_common_position"`
}

type Mover struct {
	LLM       string `json:"llm"`
	Change    int    `json:"change"`
	Direction Trend  `json:"direction"`
}

type Prediction struct {
	LLM               string `json:"llm"`
	PredictedPosition int    `json:"predicted_position"`
	Confidence        int    `json:"confidence"`
}

// TrendAnalysis summarises a set of PositionTrends for the dashboard.
type TrendAnalysis struct {
	OverallTrend    Trend        `json:"overall_trend"`
	BiggestMover    Mover        `json:"biggest_mover"`
	MostStable      string       `json:"most_stable"`
	VolatilityScore float64      `json:"volatility_score"`
	Predictions     []Prediction `json:"predictions"`
}

// Snapshot is the bulk export/import shape. On import a nil (absent or
// JSON null) collection is left untouched; an empty one replaces the stored
// collection.
type Snapshot struct {
	PositionRecords    []PositionRecord     `json:"position_records"`
	VariabilityTests   []VariabilityTest    `json:"variability_tests"`
	MonitoringSettings []MonitoringSettings `json:"monitoring_settings"`
	ExportedAt         string               `json:"exported_at,omitempty"`
}

type StoreStats struct {
	PositionRecords    int `json:"position_records"`
	VariabilityTests   int `json:"variability_tests"`
	MonitoringSettings int `json:"monitoring_settings"`
	ActiveMonitors     int `json:"active_monitors"`
}

// ClearResult reports what ClearOldData removed.
type ClearResult struct {
	Cutoff                  string `json:"cutoff"`
	PositionRecordsRemoved  int    `json:"position_records_removed"`
	VariabilityTestsRemoved int    `json:"variability_tests_removed"`
}
