// Package metrics exposes the sync counters on a private Prometheus registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tenantsync"

type Metrics struct {
	registry *prometheus.Registry

	pushTotal            *prometheus.CounterVec
	pushChanges          *prometheus.CounterVec
	pullTotal            *prometheus.CounterVec
	pullDegraded         *prometheus.CounterVec
	conflicts            *prometheus.CounterVec
	wsConnections        prometheus.Gauge
	notificationsDropped prometheus.Counter
	httpDuration         *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_total",
			Help:      "Push batches by result.",
		}, []string{"result"}),
		pushChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_changes_total",
			Help:      "Committed push changes by entity type and operation.",
		}, []string{"entity_type", "operation"}),
		pullTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pull_total",
			Help:      "Pull requests by mode.",
		}, []string{"mode"}),
		pullDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pull_degraded_total",
			Help:      "Entity types returned empty because their query failed.",
		}, []string{"entity_type"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Stale client edits detected during push, by strategy.",
		}, []string{"strategy"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open real-time connections on this node.",
		}),
		notificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because a connection queue was full.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.pushTotal,
		m.pushChanges,
		m.pullTotal,
		m.pullDegraded,
		m.conflicts,
		m.wsConnections,
		m.notificationsDropped,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) PushBatch(result string) {
	if m == nil {
		return
	}
	m.pushTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) PushChange(entityType, operation string) {
	if m == nil {
		return
	}
	m.pushChanges.WithLabelValues(entityType, operation).Inc()
}

func (m *Metrics) Pull(mode string) {
	if m == nil {
		return
	}
	m.pullTotal.WithLabelValues(mode).Inc()
}

func (m *Metrics) PullDegraded(entityType string) {
	if m == nil {
		return
	}
	m.pullDegraded.WithLabelValues(entityType).Inc()
}

func (m *Metrics) Conflict(strategy string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(strategy).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.notificationsDropped.Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
