package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Repository metrics
	DBOperations *prometheus.CounterVec
	DBDuration   *prometheus.HistogramVec

	// Workflow metrics
	Transitions  *prometheus.CounterVec
	EntriesSaved *prometheus.CounterVec

	// Step cache metrics
	DraftOperations *prometheus.CounterVec

	// Circuit breaker state: 0 closed, 1 half-open, 2 open
	BreakerState *prometheus.GaugeVec
}

// NewCollector creates a collector with its own registry, so tests can build
// as many as they like.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		DBOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_operations_total",
				Help:      "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),
		DBDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_operation_duration_seconds",
				Help:      "Database operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_transitions_total",
				Help:      "Record workflow state transitions",
			},
			[]string{"from", "to"},
		),
		EntriesSaved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entries_saved_total",
				Help:      "Daily entries written, by write path",
			},
			[]string{"step", "path"},
		),
		DraftOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "draft_operations_total",
				Help:      "Step cache operations",
			},
			[]string{"operation", "result"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.DBOperations,
		c.DBDuration,
		c.Transitions,
		c.EntriesSaved,
		c.DraftOperations,
		c.BreakerState,
	)
	return c
}

// RecordHTTPRequest counts one request and observes its latency.
func (c *Collector) RecordHTTPRequest(method, route, status string, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordDBOperation counts one store call and observes its latency.
func (c *Collector) RecordDBOperation(operation, table, status string, d time.Duration) {
	c.DBOperations.WithLabelValues(operation, table, status).Inc()
	c.DBDuration.WithLabelValues(operation, table).Observe(d.Seconds())
}

func (c *Collector) RecordTransition(from, to string) {
	c.Transitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) RecordEntrySaved(step, path string) {
	c.EntriesSaved.WithLabelValues(step, path).Inc()
}

func (c *Collector) RecordDraftOperation(operation, result string) {
	c.DraftOperations.WithLabelValues(operation, result).Inc()
}

func (c *Collector) SetBreakerState(name string, state float64) {
	c.BreakerState.WithLabelValues(name).Set(state)
}

// GetRegistry returns the Prometheus registry for this collector.
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
