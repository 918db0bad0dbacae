package metrics

import "context"

// NoopCollector discards all metrics. Used when the metrics endpoint is
// disabled in configuration.
type NoopCollector struct{}

// NewNoopCollector creates a no-op collector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (n *NoopCollector) RecordTask(ctx context.Context, kind string, status string, durationMs int64) {
}

func (n *NoopCollector) RecordRequest(ctx context.Context, route string, status string, durationMs int64) {
}

func (n *NoopCollector) RecordError(ctx context.Context, operation string, errorType string) {}

func (n *NoopCollector) SetQueueDepth(ctx context.Context, depth int64) {}

func (n *NoopCollector) SetGraphCount(ctx context.Context, entity string, count int64) {}
