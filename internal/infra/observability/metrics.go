package observability

import (
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Extraction outcomes used as the result label of bf_extractions_total.
const (
	ExtractionSuccess = "success"
	ExtractionFailure = "failure"
	ExtractionCached  = "cached"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	tokensUsed      *prometheus.CounterVec
	extractions     *prometheus.CounterVec
	escrowEvents    *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bf_request_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bf_external_errors_total",
				Help: "Total errors from external collaborators (store, extraction).",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bf_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bf_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bf_llm_tokens_total",
				Help: "Total LLM tokens consumed by stub extraction.",
			},
			[]string{"type"},
		),
		extractions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bf_extractions_total",
				Help: "Commission stub extractions by result.",
			},
			[]string{"result"},
		),
		escrowEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bf_escrow_events_total",
				Help: "Escrow lifecycle events (opened, converted, closed, cancelled).",
			},
			[]string{"event"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int64) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// IncrExtraction counts one stub extraction outcome.
func (m *Metrics) IncrExtraction(result string) {
	m.extractions.WithLabelValues(result).Inc()
}

// IncrEscrowEvent counts one escrow lifecycle event.
func (m *Metrics) IncrEscrowEvent(event string) {
	m.escrowEvents.WithLabelValues(event).Inc()
}

// GetExtractionSnapshot reads the extraction counters back for
// GET /v1/metrics/extraction.
func (m *Metrics) GetExtractionSnapshot(provider string) *domain.ExtractionMetrics {
	succeeded := getCounterValue(m.extractions, ExtractionSuccess)
	failed := getCounterValue(m.extractions, ExtractionFailure)
	cached := getCounterValue(m.extractions, ExtractionCached)
	hits := getCounterValue(m.cacheHits, "extraction")
	misses := getCounterValue(m.cacheMisses, "extraction")
	tokens := getCounterValue(m.tokensUsed, "prompt") + getCounterValue(m.tokensUsed, "completion")

	snap := &domain.ExtractionMetrics{
		Provider:       provider,
		Succeeded:      int64(succeeded),
		Failed:         int64(failed),
		Cached:         int64(cached),
		TokensConsumed: int64(tokens),
	}
	if total := succeeded + failed + cached; total > 0 {
		snap.FallbackRate = failed / total
	}
	if hits+misses > 0 {
		snap.CacheHitRate = hits / (hits + misses)
	}
	return snap
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
