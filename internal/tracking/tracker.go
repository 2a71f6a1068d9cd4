// Package tracking probes the configured LLMs with a query and turns their
// ranked answers into position records and variability tests.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/llm"
	"github.com/aeo-tracker/backend/internal/metrics"
	"github.com/aeo-tracker/backend/internal/storage/models"
	"github.com/aeo-tracker/backend/internal/temporal"
	"github.com/aeo-tracker/backend/pkg/logger"
)

var (
	ErrNoProviders     = errors.New("no llm providers configured")
	ErrAllProbesFailed = errors.New("every llm probe failed")
)

// samplesPerVariabilityTest is how many times each LLM is asked the same
// query when measuring consistency.
const samplesPerVariabilityTest = 3

type Ranker interface {
	RankedAnswer(ctx context.Context, model, query string) (*llm.RankedAnswer, error)
}

type RecordStore interface {
	SavePositionRecord(ctx context.Context, record models.PositionRecord) (models.PositionRecord, error)
	SaveVariabilityTest(ctx context.Context, test models.VariabilityTest) (models.VariabilityTest, error)
}

type Target struct {
	Brand   string `json:"brand"`
	Query   string `json:"query"`
	Website string `json:"website"`
}

func (t Target) validate() error {
	if strings.TrimSpace(t.Brand) == "" || strings.TrimSpace(t.Query) == "" {
		return fmt.Errorf("%w: brand and query are required", temporal.ErrInvalidRecord)
	}
	return nil
}

type provider struct {
	name  string
	model string
}

type Tracker struct {
	ranker    Ranker
	store     RecordStore
	providers []provider
}

// NewTracker pairs each roster LLM with the model that answers on its
// behalf. Roster names are matched against the model map case-insensitively;
// names without a model are not probed.
func NewTracker(ranker Ranker, store RecordStore, roster []string, modelsByName map[string]string) *Tracker {
	t := &Tracker{ranker: ranker, store: store}

	for _, name := range roster {
		model := lookupModel(modelsByName, name)
		if model == "" {
			logger.Warn("No model configured for LLM, skipping", zap.String("llm", name))
			continue
		}
		t.providers = append(t.providers, provider{name: name, model: model})
	}

	logger.Info("Tracker initialized", zap.Int("providers", len(t.providers)))
	return t
}

func lookupModel(modelsByName map[string]string, name string) string {
	if m, ok := modelsByName[name]; ok {
		return m
	}
	for k, m := range modelsByName {
		if strings.EqualFold(k, name) {
			return m
		}
	}
	return ""
}

// Providers lists the LLM names that will be probed, in roster order.
func (t *Tracker) Providers() []string {
	names := make([]string, len(t.providers))
	for i, p := range t.providers {
		names[i] = p.name
	}
	return names
}

// TrackPositions asks every provider the target query once and saves one
// position record per answer. A failing provider is logged and skipped; the
// call only fails when none answered.
func (t *Tracker) TrackPositions(ctx context.Context, target Target) ([]models.PositionRecord, error) {
	if err := target.validate(); err != nil {
		return nil, err
	}
	if len(t.providers) == 0 {
		return nil, ErrNoProviders
	}

	saved := make([]models.PositionRecord, 0, len(t.providers))
	var lastErr error

	for _, p := range t.providers {
		answer, err := t.probe(ctx, p, target.Query)
		if err != nil {
			if ctx.Err() != nil {
				return saved, ctx.Err()
			}
			lastErr = err
			continue
		}

		record := analyze(answer, target)
		record.LLM = p.name

		stored, err := t.store.SavePositionRecord(ctx, record)
		if err != nil {
			return saved, fmt.Errorf("failed to save position for %s: %w", p.name, err)
		}
		saved = append(saved, stored)
	}

	if len(saved) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrAllProbesFailed, lastErr)
	}

	logger.Info("Positions tracked",
		zap.String("brand", target.Brand),
		zap.String("query", target.Query),
		zap.Int("records", len(saved)),
	)

	return saved, nil
}

// RunVariabilityTest asks every provider the same query three times and
// saves the spread of the brand's position as a variability test.
func (t *Tracker) RunVariabilityTest(ctx context.Context, target Target) (models.VariabilityTest, error) {
	if err := target.validate(); err != nil {
		return models.VariabilityTest{}, err
	}
	if len(t.providers) == 0 {
		return models.VariabilityTest{}, ErrNoProviders
	}

	var (
		results []models.VariabilityResult
		lastErr error
	)

providers:
	for _, p := range t.providers {
		var positions [samplesPerVariabilityTest]int
		for i := range positions {
			answer, err := t.probe(ctx, p, target.Query)
			if err != nil {
				if ctx.Err() != nil {
					return models.VariabilityTest{}, ctx.Err()
				}
				lastErr = err
				continue providers
			}
			positions[i], _ = locate(answer.Items, target)
		}
		results = append(results, temporal.ScoreVariability(p.name, positions[0], positions[1], positions[2]))
	}

	if len(results) == 0 {
		return models.VariabilityTest{}, fmt.Errorf("%w: %w", ErrAllProbesFailed, lastErr)
	}

	return t.store.SaveVariabilityTest(ctx, models.VariabilityTest{
		Brand:   target.Brand,
		Query:   target.Query,
		Website: target.Website,
		Results: results,
	})
}

func (t *Tracker) probe(ctx context.Context, p provider, query string) (*llm.RankedAnswer, error) {
	start := time.Now()
	answer, err := t.ranker.RankedAnswer(ctx, p.model, query)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMProbeDuration.WithLabelValues(p.name, status).Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Warn("LLM probe failed",
			zap.String("llm", p.name),
			zap.String("model", p.model),
			zap.Error(err),
		)
		return nil, err
	}
	return answer, nil
}

// analyze scores one answer for the target. Position is the 1-based rank of
// the first list entry naming the brand or its website, or one past the end
// of the list when the brand is absent.
func analyze(answer *llm.RankedAnswer, target Target) models.PositionRecord {
	position, found := locate(answer.Items, target)

	content := strings.ToLower(answer.Content)
	brand := strings.ToLower(strings.TrimSpace(target.Brand))
	site := siteName(target.Website)

	mentions := strings.Count(content, brand)

	accuracy := 0.0
	switch {
	case site != "" && strings.Contains(content, site):
		accuracy = 100
	case found:
		accuracy = 70
	}

	relevance := 0.0
	if found {
		relevance = math.Max(0, 100-float64(position-1)*10)
	}

	citation := 0.0
	if len(answer.Items) > 0 {
		hits := 0
		for _, item := range answer.Items {
			if matches(item, brand, site) {
				hits++
			}
		}
		citation = math.Round(float64(hits)/float64(len(answer.Items))*1000) / 10
	}

	return models.PositionRecord{
		Brand:             target.Brand,
		Query:             target.Query,
		Website:           target.Website,
		Position:          position,
		Mentions:          mentions,
		Accuracy:          accuracy,
		Relevance:         relevance,
		ContextQuality:    contextQuality(position, found),
		CitationFrequency: citation,
		Sentiment:         sentiment(content, brand),
	}
}

func locate(items []string, target Target) (int, bool) {
	brand := strings.ToLower(strings.TrimSpace(target.Brand))
	site := siteName(target.Website)
	for i, item := range items {
		if matches(item, brand, site) {
			return i + 1, true
		}
	}
	return len(items) + 1, false
}

func matches(item, brand, site string) bool {
	item = strings.ToLower(item)
	return (brand != "" && strings.Contains(item, brand)) || (site != "" && strings.Contains(item, site))
}

// siteName reduces a website to its bare lowercase host, so
// "https://www.Tesla.com/models" and "tesla.com" compare equal.
func siteName(website string) string {
	website = strings.ToLower(strings.TrimSpace(website))
	if website == "" {
		return ""
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func contextQuality(position int, found bool) string {
	switch {
	case !found:
		return "absent"
	case position == 1:
		return "excellent"
	case position <= 3:
		return "good"
	case position <= 5:
		return "fair"
	default:
		return "weak"
	}
}

var (
	positiveWords = []string{"best", "leading", "leader", "top", "excellent", "recommended", "reliable", "popular", "innovative", "great", "trusted"}
	negativeWords = []string{"expensive", "poor", "issues", "problems", "worse", "lacks", "limited", "controversial", "recall", "avoid", "complaints"}
)

// A period inside a domain name is not a sentence break.
var sentenceBreak = regexp.MustCompile(`[.!?]+\s+|\n+`)

// sentiment scores the sentences that name the brand by counting cue words.
func sentiment(content, brand string) models.Sentiment {
	if brand == "" {
		return models.SentimentNeutral
	}

	score := 0
	for _, sentence := range sentenceBreak.Split(content, -1) {
		if !strings.Contains(sentence, brand) {
			continue
		}
		words := strings.FieldsFunc(sentence, func(r rune) bool {
			return !(r >= 'a' && r <= 'z') && r != '-'
		})
		for _, w := range words {
			if slices.Contains(positiveWords, w) {
				score++
			}
			if slices.Contains(negativeWords, w) {
				score--
			}
		}
	}

	switch {
	case score > 0:
		return models.SentimentPositive
	case score < 0:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}
