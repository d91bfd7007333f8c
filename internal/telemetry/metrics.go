// Package telemetry exposes Prometheus collectors for the scraper service.
package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	resolutionsTotal       *prometheus.CounterVec
	cacheHitsTotal         *prometheus.CounterVec
	gateDelaySeconds       *prometheus.HistogramVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDurationSec *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		resolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_resolutions_total",
				Help: "Resolutions completed, labeled by source and envelope status.",
			},
			[]string{"source", "status"},
		)
		cacheHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_cache_hits_total",
				Help: "Resolutions served from cache without an upstream call.",
			},
			[]string{"source"},
		)
		gateDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_gate_delay_seconds",
				Help:    "Time spent waiting on a source's rate gate.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"source"},
		)
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Inbound HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
		httpRequestDurationSec = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Inbound HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route"},
		)
	})
}

// ObserveResolution counts one finished resolution.
func ObserveResolution(source, status string) {
	Init()
	resolutionsTotal.WithLabelValues(source, status).Inc()
}

// ObserveCacheHit counts a cache-served resolution.
func ObserveCacheHit(source string) {
	Init()
	cacheHitsTotal.WithLabelValues(source).Inc()
}

// ObserveGateDelay records time spent waiting for a source's rate gate.
func ObserveGateDelay(source string, d time.Duration) {
	Init()
	gateDelaySeconds.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveHTTPRequest records an inbound request.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDurationSec.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}
