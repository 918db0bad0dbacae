package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector provides Prometheus metrics for the concept graph
// and its generation pipeline.
type PrometheusCollector struct {
	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	graphCount      *prometheus.GaugeVec
	registry        *prometheus.Registry
}

// NewCollector creates a Prometheus metrics collector with its own
// registry.
func NewCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()

	tasksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexigraph_tasks_total",
			Help: "Total number of finished generation tasks by kind and status",
		},
		[]string{"kind", "status"},
	)

	taskDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexigraph_task_duration_seconds",
			Help:    "Wall-clock duration of generation tasks by kind",
			Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
		},
		[]string{"kind"},
	)

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexigraph_requests_total",
			Help: "Total number of handled HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexigraph_request_duration_seconds",
			Help:    "Duration of handled HTTP requests by route",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5},
		},
		[]string{"route"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexigraph_errors_total",
			Help: "Total number of errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)

	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lexigraph_queue_depth",
			Help: "Current number of queued generation tasks",
		},
	)

	graphCount := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lexigraph_graph_count",
			Help: "Current count of graph entities by type",
		},
		[]string{"entity"},
	)

	registry.MustRegister(tasksTotal)
	registry.MustRegister(taskDuration)
	registry.MustRegister(requestsTotal)
	registry.MustRegister(requestDuration)
	registry.MustRegister(errorsTotal)
	registry.MustRegister(queueDepth)
	registry.MustRegister(graphCount)

	return &PrometheusCollector{
		tasksTotal:      tasksTotal,
		taskDuration:    taskDuration,
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
		errorsTotal:     errorsTotal,
		queueDepth:      queueDepth,
		graphCount:      graphCount,
		registry:        registry,
	}
}

// RecordTask records a finished generation task.
func (m *PrometheusCollector) RecordTask(ctx context.Context, kind string, status string, durationMs int64) {
	m.tasksTotal.WithLabelValues(kind, status).Inc()
	m.taskDuration.WithLabelValues(kind).Observe(float64(durationMs) / 1000.0)
}

// RecordRequest records a handled HTTP request.
func (m *PrometheusCollector) RecordRequest(ctx context.Context, route string, status string, durationMs int64) {
	m.requestsTotal.WithLabelValues(route, status).Inc()
	m.requestDuration.WithLabelValues(route).Observe(float64(durationMs) / 1000.0)
}

// RecordError records an error occurrence.
func (m *PrometheusCollector) RecordError(ctx context.Context, operation string, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetQueueDepth sets the queued-task gauge.
func (m *PrometheusCollector) SetQueueDepth(ctx context.Context, depth int64) {
	m.queueDepth.Set(float64(depth))
}

// SetGraphCount sets the gauge for one graph entity type.
func (m *PrometheusCollector) SetGraphCount(ctx context.Context, entity string, count int64) {
	m.graphCount.WithLabelValues(entity).Set(float64(count))
}

// Registry returns the Prometheus registry for HTTP exposure.
func (m *PrometheusCollector) Registry() *prometheus.Registry {
	return m.registry
}
