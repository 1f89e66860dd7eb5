// Package metrics exposes purge daemon counters on a private Prometheus registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Recorder is what the purge path reports to.
type Recorder interface {
	RecordPurge(trigger, kind, outcome string, urls int, duration time.Duration)
	RecordZoneLookup(result string)
	RecordHookRequest(route string, status int)
	SetCoalescePending(n int)
}

// Zone lookup results
const (
	ZoneCacheHit = "cache_hit"
	ZoneResolved = "resolved"
	ZoneFailed   = "failed"
)

type PrometheusMetrics struct {
	httpHandler fasthttp.RequestHandler
	registry    *prometheus.Registry

	purgesTotal       *prometheus.CounterVec
	purgeDuration     *prometheus.HistogramVec
	purgedURLs        prometheus.Histogram
	zoneLookupsTotal  *prometheus.CounterVec
	hookRequestsTotal *prometheus.CounterVec
	coalescePending   prometheus.Gauge
}

func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	if namespace == "" {
		namespace = "cfpurge"
	}

	pm := &PrometheusMetrics{registry: prometheus.NewRegistry()}

	pm.purgesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purges_total",
			Help:      "Purge attempts by trigger, kind and outcome",
		},
		[]string{"trigger", "kind", "outcome"},
	)

	pm.purgeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "purge_duration_seconds",
			Help:      "Duration of purge attempts including zone resolution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	pm.purgedURLs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "selective_purge_urls",
			Help:      "Number of URLs per selective purge call",
			Buckets:   []float64{1, 5, 10, 15, 20, 30, 50, 100},
		},
	)

	pm.zoneLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zone_lookups_total",
			Help:      "Zone id resolutions by result",
		},
		[]string{"result"},
	)

	pm.hookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_requests_total",
			Help:      "Inbound hook and admin requests by route and status",
		},
		[]string{"route", "status"},
	)

	pm.coalescePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coalesce_pending_urls",
			Help:      "URLs waiting in the coalescing queue",
		},
	)

	pm.registry.MustRegister(
		pm.purgesTotal,
		pm.purgeDuration,
		pm.purgedURLs,
		pm.zoneLookupsTotal,
		pm.hookRequestsTotal,
		pm.coalescePending,
	)

	handler := promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(handler)

	logger.Info("Prometheus metrics initialized", zap.String("namespace", namespace))

	return pm
}

func (pm *PrometheusMetrics) RecordPurge(trigger, kind, outcome string, urls int, duration time.Duration) {
	pm.purgesTotal.WithLabelValues(trigger, kind, outcome).Inc()
	pm.purgeDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if urls > 0 {
		pm.purgedURLs.Observe(float64(urls))
	}
}

func (pm *PrometheusMetrics) RecordZoneLookup(result string) {
	pm.zoneLookupsTotal.WithLabelValues(result).Inc()
}

func (pm *PrometheusMetrics) RecordHookRequest(route string, status int) {
	pm.hookRequestsTotal.WithLabelValues(route, statusClass(status)).Inc()
}

func (pm *PrometheusMetrics) SetCoalescePending(n int) {
	pm.coalescePending.Set(float64(n))
}

// Registry exposes the underlying registry for tests and extra collectors.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) RecordPurge(string, string, string, int, time.Duration) {}
func (Noop) RecordZoneLookup(string)                                {}
func (Noop) RecordHookRequest(string, int)                          {}
func (Noop) SetCoalescePending(int)                                 {}
