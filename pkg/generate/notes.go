package generate

import (
	"context"
	"fmt"
	"strings"

	"lexigraph/pkg/llm"
)

const phraseNotePrompt = `Role:
You are an expert technical writer and domain specialist.
Task:
Build a clear, accurate, and well-structured description of the following Phrase, using the provided Context to frame its domain, purpose, and relevance. If a Modifier is provided, use it to guide emphasis, scope, or perspective.
Inputs
Phrase:
%s
Context:
%s
Modifier (optional):
%s
Instructions
Define and situate the phrase
Clearly explain what the phrase refers to
Place it within the scientific, technical, organizational, or conceptual domain implied by the context
Explain structure, function, or mechanism
Describe how the system/entity/idea works
Highlight key components, processes, or relationships
Describe role and significance
Explain why it matters within the given context
Apply the modifier (if provided)
Adjust tone, depth, and emphasis according to the modifier
Output Requirements
Length: ~200-400 words
Style: Clear, professional, and explanatory
Do not ask follow-up questions
Do not reference this prompt or the input format
`

// WriteNote asks the model for a free-text note about a phrase. Context is
// the subject concept's display text, optionally "parent / concept" when a
// parent is known. The note is written directly, no staging step.
func (g *Generator) WriteNote(ctx context.Context, phrase, noteContext, modifier string) (string, llm.Usage, error) {
	if strings.TrimSpace(modifier) == "" {
		modifier = "none"
	}
	prompt := fmt.Sprintf(phraseNotePrompt, phrase, noteContext, modifier)

	text, usage, err := g.LLM.Complete(ctx, prompt)
	if err != nil {
		return "", usage, fmt.Errorf("note generation failed: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", usage, fmt.Errorf("%w: note text is empty", ErrSchemaMismatch)
	}
	return text, usage, nil
}

const appendPhrasesPrompt = `You suggest additional orbiting phrases for a concept.
Return ONLY valid JSON with the schema:
{ "phrases": [string, ...] }
Do not include markdown or extra keys.

Concept: %s
%sThe concept already has these phrases:
%s
Suggest 3-12 new short phrases that relate to the concept.
Do not repeat existing phrases.
Keep everything lower-case unless a proper noun.
`

// AppendPhrases asks the model for additional orbiting phrases for a
// concept, excluding the ones it already has.
func (g *Generator) AppendPhrases(ctx context.Context, subject string, existing []string, modifier string) ([]string, llm.Usage, error) {
	modifierLine := ""
	if m := strings.TrimSpace(modifier); m != "" {
		modifierLine = fmt.Sprintf("Modifier: %s\n", m)
	}
	existingBlock := "(none)"
	if len(existing) > 0 {
		existingBlock = "- " + strings.Join(existing, "\n- ")
	}
	prompt := fmt.Sprintf(appendPhrasesPrompt, subject, modifierLine, existingBlock)

	raw, usage, err := g.LLM.Complete(ctx, prompt)
	if err != nil {
		return nil, usage, fmt.Errorf("phrase generation failed: %w", err)
	}
	var out struct {
		Phrases []string `json:"phrases"`
	}
	if err := strictUnmarshal(llm.StripMarkdownCodeFence(raw), &out); err != nil {
		return nil, usage, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	known := make(map[string]bool, len(existing))
	for _, p := range existing {
		known[strings.ToLower(strings.TrimSpace(p))] = true
	}

	phrases := make([]string, 0, len(out.Phrases))
	for _, p := range out.Phrases {
		p = strings.TrimSpace(p)
		if p == "" || known[strings.ToLower(p)] {
			continue
		}
		known[strings.ToLower(p)] = true
		phrases = append(phrases, p)
	}
	if len(phrases) == 0 {
		return nil, usage, fmt.Errorf("%w: no new phrases returned", ErrSchemaMismatch)
	}
	return phrases, usage, nil
}
