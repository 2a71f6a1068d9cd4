package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecordsSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeo_records_saved_total",
			Help: "Records saved to the temporal store",
		},
		[]string{"kind"},
	)

	RecordsTrimmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeo_records_trimmed_total",
			Help: "Records evicted by the retention cap",
		},
		[]string{"kind"},
	)

	RecordsCleared = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeo_records_cleared_total",
			Help: "Records removed by age cleanup",
		},
		[]string{"kind"},
	)

	PersistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeo_persistence_failures_total",
			Help: "Slot reads or writes that failed",
		},
		[]string{"slot", "op"},
	)

	MalformedSlots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeo_malformed_slots_total",
			Help: "Slot reads whose content could not be decoded",
		},
		[]string{"slot"},
	)

	StoreOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aeo_store_operation_duration_seconds",
			Help:    "Temporal store operation duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"op"},
	)

	CollectionSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aeo_collection_size",
			Help: "Number of records held per collection",
		},
		[]string{"kind"},
	)

	MonitoringRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeo_monitoring_runs_total",
			Help: "Monitored queries re-run by the scheduler",
		},
		[]string{"status"},
	)

	MonitoringAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aeo_monitoring_alerts_total",
			Help: "Position changes that crossed an alert threshold",
		},
	)

	LLMProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aeo_llm_probe_duration_seconds",
			Help:    "Duration of one ranked-answer request per LLM",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"llm", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeo_llm_tokens_used_total",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)
)

func Init() {
	prometheus.MustRegister(RecordsSaved)
	prometheus.MustRegister(RecordsTrimmed)
	prometheus.MustRegister(RecordsCleared)
	prometheus.MustRegister(PersistenceFailures)
	prometheus.MustRegister(MalformedSlots)
	prometheus.MustRegister(StoreOpDuration)
	prometheus.MustRegister(CollectionSize)
	prometheus.MustRegister(MonitoringRuns)
	prometheus.MustRegister(MonitoringAlerts)
	prometheus.MustRegister(LLMProbeDuration)
	prometheus.MustRegister(LLMTokensUsed)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
