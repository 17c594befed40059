// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pipelineUnitsTotal         *prometheus.CounterVec
	pipelineFetchesTotal       *prometheus.CounterVec
	pipelineCacheLookupsTotal  *prometheus.CounterVec
	pipelineFetchSeconds       *prometheus.HistogramVec
	pipelineActiveUnits        prometheus.Gauge
	pipelineRateLimitDelaySecs *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call repeatedly;
// every Observe helper calls it, so miswired callers cannot panic on a
// nil collector.
func Init() {
	once.Do(func() {
		pipelineUnitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_units_total",
				Help: "Total number of work units processed, labeled by status.",
			},
			[]string{"status"},
		)

		pipelineFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_fetches_total",
				Help: "Total number of URL fetches, labeled by site, mode, and outcome.",
			},
			[]string{"site", "mode", "outcome"},
		)

		pipelineCacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_cache_lookups_total",
				Help: "Fetch cache lookups, labeled hit or miss.",
			},
			[]string{"result"},
		)

		pipelineFetchSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by mode.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"mode"},
		)

		pipelineActiveUnits = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_active_units",
				Help: "Number of work units currently holding a concurrency slot.",
			},
		)

		pipelineRateLimitDelaySecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_rate_limit_delay_seconds",
				Help:    "Histogram of per-domain rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUnit increments the unit counter for the given status.
func ObserveUnit(status string) {
	Init()
	pipelineUnitsTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records one completed fetch attempt.
func ObserveFetch(site, mode, outcome string, duration time.Duration) {
	Init()
	pipelineFetchesTotal.WithLabelValues(SanitizeSite(site), mode, outcome).Inc()
	pipelineFetchSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveCacheLookup records a fetch cache hit or miss.
func ObserveCacheLookup(result string) {
	Init()
	pipelineCacheLookupsTotal.WithLabelValues(result).Inc()
}

// IncActiveUnits increments the active units gauge.
func IncActiveUnits() {
	Init()
	pipelineActiveUnits.Inc()
}

// DecActiveUnits decrements the active units gauge.
func DecActiveUnits() {
	Init()
	pipelineActiveUnits.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	pipelineRateLimitDelaySecs.WithLabelValues(domain).Observe(duration.Seconds())
}
