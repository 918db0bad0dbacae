// Package llm provides completion clients for the generation pipelines.
package llm

import "context"

// Usage is the token accounting for one completion call. Backends that do
// not report usage leave it zero.
type Usage struct {
	TokensIn  int `json:"tokensIn"`
	TokensOut int `json:"tokensOut"`
}

// Client is the interface the worker dispatches completions through.
type Client interface {
	// Complete sends a prompt and returns the raw completion text plus
	// the call's token usage.
	Complete(ctx context.Context, prompt string) (string, Usage, error)

	// CompleteWithSchema sends a prompt and unmarshals the JSON response
	// into schema, which must be a pointer to the target struct. Markdown
	// code fences around the JSON are tolerated.
	CompleteWithSchema(ctx context.Context, prompt string, schema any) (Usage, error)

	// Model reports the model name, recorded on generated artifacts.
	Model() string
}
