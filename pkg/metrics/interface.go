package metrics

import "context"

// Collector is the interface for metrics collection. Implementations are
// the Prometheus-backed collector and the no-op collector used when the
// metrics endpoint is disabled.
type Collector interface {
	// RecordTask records a finished generation task by kind and terminal
	// status, with its wall-clock duration.
	RecordTask(ctx context.Context, kind string, status string, durationMs int64)

	// RecordRequest records a handled HTTP request by route and status
	// class.
	RecordRequest(ctx context.Context, route string, status string, durationMs int64)

	// RecordError records an error occurrence by operation and type.
	RecordError(ctx context.Context, operation string, errorType string)

	// SetQueueDepth sets the current number of queued generation tasks.
	SetQueueDepth(ctx context.Context, depth int64)

	// SetGraphCount sets the current count of a graph entity (concepts,
	// versions, phrases, edges).
	SetGraphCount(ctx context.Context, entity string, count int64)
}
