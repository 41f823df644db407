package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP, cache and audit lifecycle events.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	auditsScheduled     *prometheus.CounterVec
	executionTransition *prometheus.CounterVec
	findingsRaised      *prometheus.CounterVec
	actionTransition    *prometheus.CounterVec
	archivesCreated     *prometheus.CounterVec
	eventsPublished     *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	auditsScheduled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audits_scheduled_total",
		Help: "Audit executions scheduled, by template category",
	}, []string{"category"})

	executionTransition := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_execution_transitions_total",
		Help: "Audit execution status transitions",
	}, []string{"from", "to"})

	findingsRaised := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "non_conformities_raised_total",
		Help: "Non-conformities derived from responses, by severity",
	}, []string{"severity"})

	actionTransition := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "corrective_action_transitions_total",
		Help: "Corrective action status transitions",
	}, []string{"from", "to"})

	archivesCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_archives_created_total",
		Help: "Executions archived, by template category",
	}, []string{"category"})

	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_events_total",
		Help: "Notification events handed to the publisher, by type and outcome",
	}, []string{"type", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		auditsScheduled, executionTransition, findingsRaised, actionTransition, archivesCreated, eventsPublished,
		goroutines,
	)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		cacheLatency:        cacheLatency,
		cacheWrite:          cacheWrite,
		cacheHitRatio:       cacheHitRatio,
		cacheHits:           cacheHits,
		cacheMisses:         cacheMisses,
		auditsScheduled:     auditsScheduled,
		executionTransition: executionTransition,
		findingsRaised:      findingsRaised,
		actionTransition:    actionTransition,
		archivesCreated:     archivesCreated,
		eventsPublished:     eventsPublished,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// AuditScheduled counts a newly scheduled execution.
func (m *MetricsService) AuditScheduled(category string) {
	if m == nil {
		return
	}
	m.auditsScheduled.WithLabelValues(category).Inc()
}

// ExecutionTransitioned counts an execution status change.
func (m *MetricsService) ExecutionTransitioned(from, to string) {
	if m == nil {
		return
	}
	m.executionTransition.WithLabelValues(from, to).Inc()
}

// FindingRaised counts a new non-conformity.
func (m *MetricsService) FindingRaised(severity string) {
	if m == nil {
		return
	}
	m.findingsRaised.WithLabelValues(severity).Inc()
}

// ActionTransitioned counts a corrective action status change.
func (m *MetricsService) ActionTransitioned(from, to string) {
	if m == nil {
		return
	}
	m.actionTransition.WithLabelValues(from, to).Inc()
}

// ArchiveCreated counts an archived execution.
func (m *MetricsService) ArchiveCreated(category string) {
	if m == nil {
		return
	}
	m.archivesCreated.WithLabelValues(category).Inc()
}

// EventPublished counts a notification hand-off attempt.
func (m *MetricsService) EventPublished(eventType, result string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType, result).Inc()
}
