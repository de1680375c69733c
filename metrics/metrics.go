package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Answer outcomes
const (
	OutcomeCacheHit         = "cache_hit"
	OutcomeGenerated        = "generated"
	OutcomeDegraded         = "degraded"
	OutcomeGenerationFailed = "generation_failed"
	OutcomeMandatoryFailed  = "mandatory_failed"
)

var (
	once sync.Once

	answerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rrc_answer_latency_ms",
		Help:    "End-to-end latency of Answer calls in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
	}, []string{"outcome"})

	answerConfidence = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rrc_answer_confidence",
		Help:    "Confidence score distribution of generated answers",
		Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	sourceLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rrc_source_latency_ms",
		Help:    "Latency of retrieval source calls in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"source"})

	sourceFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rrc_source_failures_total",
		Help: "Retrieval source calls that failed or timed out",
	}, []string{"source"})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rrc_cache_lookups_total",
		Help: "Cache lookups by cache and result (hit/miss)",
	}, []string{"cache", "result"})

	fragmentsKept = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rrc_ranked_fragments",
		Help:    "Number of fragments that survived ranking",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
	})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(answerLatency, answerConfidence, sourceLatency, sourceFailures, cacheLookups, fragmentsKept)
	})
}

// ObserveAnswer records the latency of an Answer call under its outcome.
func ObserveAnswer(outcome string, start time.Time) {
	ensureRegistered()
	answerLatency.WithLabelValues(outcome).Observe(float64(time.Since(start).Milliseconds()))
}

func ObserveConfidence(score float64) {
	ensureRegistered()
	if score >= 0 {
		answerConfidence.Observe(score)
	}
}

// ObserveSource records latency for a source call and counts it as failed when err is non-nil.
func ObserveSource(source string, start time.Time, err error) {
	ensureRegistered()
	sourceLatency.WithLabelValues(source).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		sourceFailures.WithLabelValues(source).Inc()
	}
}

// IncCacheLookup counts a hit or miss on the named cache.
func IncCacheLookup(cache string, hit bool) {
	ensureRegistered()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(cache, result).Inc()
}

func ObserveFragments(n int) {
	ensureRegistered()
	fragmentsKept.Observe(float64(n))
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	ensureRegistered()
	return promhttp.Handler()
}

// Collectors exposes all collectors for external registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		answerLatency, answerConfidence, sourceLatency, sourceFailures, cacheLookups, fragmentsKept,
	}
}
