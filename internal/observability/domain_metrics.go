package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	contextCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghimmohmoh_context_cache_requests_total",
			Help: "Context cache lookups by result (hit, miss, shared).",
		},
		[]string{"result"},
	)
	contextBuildLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ghimmohmoh_context_build_latency_ms",
			Help:    "Latency of context document builds against the warehouse in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)
	contextBuildErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghimmohmoh_context_build_errors_total",
			Help: "Failed context builds by error class.",
		},
		[]string{"class"},
	)
	promptArchivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ghimmohmoh_prompt_archived_total",
			Help: "Total number of system prompts written to the archive.",
		},
	)
	promptBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghimmohmoh_system_prompt_bytes",
			Help: "Size of the most recently assembled system prompt.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		contextCacheRequestsTotal,
		contextBuildLatencyMs,
		contextBuildErrorsTotal,
		promptArchivedTotal,
		promptBytes,
	)
}

const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheShared = "shared"
)

func ObserveContextCache(result string) {
	contextCacheRequestsTotal.WithLabelValues(result).Inc()
}

func ObserveContextBuild(elapsed time.Duration) {
	contextBuildLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

// IncrementContextBuildError counts a failed build; class is one of
// data_access, schema_mismatch or other.
func IncrementContextBuildError(class string) {
	contextBuildErrorsTotal.WithLabelValues(class).Inc()
}

func IncrementPromptArchived() {
	promptArchivedTotal.Inc()
}

func SetSystemPromptBytes(size int) {
	promptBytes.Set(float64(size))
}
