// Package metrics exposes Prometheus instrumentation for searches,
// captures and observer events.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all collectors. It satisfies the region and observer
// recorder interfaces and provides a capture hook.
type Metrics struct {
	registry *prometheus.Registry

	searchesTotal   *prometheus.CounterVec
	searchDuration  *prometheus.HistogramVec
	searchAttempts  prometheus.Histogram
	capturesTotal   *prometheus.CounterVec
	captureDuration prometheus.Histogram
	eventsTotal     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registry.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pixelfind metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.searchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelfind_searches_total",
		Help: "Completed region searches by operation and result.",
	}, []string{"op", "result"})

	m.searchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pixelfind_search_duration_seconds",
		Help:    "Wall time of region searches including polling.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"op"})

	m.searchAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pixelfind_search_attempts",
		Help:    "Capture and match attempts per search.",
		Buckets: prometheus.LinearBuckets(1, 2, 10),
	})

	m.capturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelfind_captures_total",
		Help: "Screen captures by status.",
	}, []string{"status"})

	m.captureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pixelfind_capture_duration_seconds",
		Help:    "Duration of single screen captures.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	m.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelfind_observer_events_total",
		Help: "Observer events fired by type.",
	}, []string{"type"})
}

// ObserveSearch records one finished search.
func (m *Metrics) ObserveSearch(op, result string, attempts int, elapsed time.Duration) {
	m.searchesTotal.WithLabelValues(op, result).Inc()
	m.searchDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	m.searchAttempts.Observe(float64(attempts))
}

// ObserveEvent records one fired observer event.
func (m *Metrics) ObserveEvent(eventType string) {
	m.eventsTotal.WithLabelValues(eventType).Inc()
}

// ObserveCapture records one capture attempt. Its signature matches
// capture.CaptureHook.
func (m *Metrics) ObserveCapture(elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.capturesTotal.WithLabelValues(status).Inc()
	if err == nil {
		m.captureDuration.Observe(elapsed.Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.searchesTotal.Describe(ch)
	m.searchDuration.Describe(ch)
	m.searchAttempts.Describe(ch)
	m.capturesTotal.Describe(ch)
	m.captureDuration.Describe(ch)
	m.eventsTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.searchesTotal.Collect(ch)
	m.searchDuration.Collect(ch)
	m.searchAttempts.Collect(ch)
	m.capturesTotal.Collect(ch)
	m.captureDuration.Collect(ch)
	m.eventsTotal.Collect(ch)
}
