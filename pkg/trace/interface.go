package trace

import (
	"context"
	"time"
)

// Exporter defines the interface for exporting task traces.
// Implementations must be safe for concurrent use.
type Exporter interface {
	// Export writes a trace record to the configured destination.
	// Returns error if export fails.
	Export(ctx context.Context, record *TraceRecord) error

	// Close flushes any buffered records and releases resources.
	// Should be called during graceful shutdown.
	Close() error
}

// TraceRecord represents a sanitized task trace ready for export.
// This structure contains NO sensitive data (no prompts, API keys, phrase text).
type TraceRecord struct {
	// Timestamp is the task start time
	Timestamp time.Time `json:"timestamp"`

	// RunID uniquely identifies this worker run of the task (for correlation)
	RunID string `json:"runId"`

	// TaskID is the queue identifier of the task
	TaskID int64 `json:"taskId"`

	// Kind is the task kind: "plan_subconcepts", "append_phrases",
	// "phrase_note", "crossref_sentences"
	Kind string `json:"kind"`

	// DurationMs is the total task duration in milliseconds
	DurationMs int64 `json:"durationMs"`

	// Status is "done" or "error"
	Status string `json:"status"`

	// Spans contains per-stage timing and status
	Spans []SpanRecord `json:"spans"`

	// ErrorType classifies the error (if Status == "error")
	// Values: network, timeout, llm, schema, database, validation, unknown
	ErrorType string `json:"errorType,omitempty"`

	// IDs contains task-specific identifiers (no content)
	IDs map[string]interface{} `json:"ids,omitempty"`
}

// SpanRecord represents a single stage within a task run.
type SpanRecord struct {
	// Name is the stage name (claim, generate, parse, store, apply)
	Name string `json:"name"`

	// DurationMs is the stage duration in milliseconds
	DurationMs int64 `json:"durationMs"`

	// OK indicates success (true) or failure (false)
	OK bool `json:"ok"`

	// ErrorType classifies the error (if OK == false)
	ErrorType string `json:"errorType,omitempty"`

	// Counters provides stage-specific metrics (e.g., themeCount, phraseCount)
	Counters map[string]int64 `json:"counters,omitempty"`
}

// FileExporterOption configures a FileExporter.
type FileExporterOption func(*FileExporter)
