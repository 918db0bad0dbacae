// Package generate builds prompts for the generation pipelines and parses
// model output into structured plans. Parsing is kept separate from
// storage so prompt grammar changes stay visible in one place.
package generate

import (
	"errors"

	"lexigraph/pkg/llm"
)

// ErrSchemaMismatch indicates the model's output did not parse into the
// expected shape. The task fails; re-enqueueing with a different modifier
// is the only recovery.
var ErrSchemaMismatch = errors.New("generated output did not match expected schema")

// Generator dispatches the generation kinds through a completion client.
type Generator struct {
	LLM llm.Client
}

// NewGenerator creates a generator backed by the given client.
func NewGenerator(client llm.Client) *Generator {
	return &Generator{LLM: client}
}

// Model reports the backing client's model name for artifact records.
func (g *Generator) Model() string {
	return g.LLM.Model()
}
