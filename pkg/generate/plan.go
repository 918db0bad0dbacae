package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"lexigraph/pkg/llm"
)

// Plan is the staged proposal for new sub-concepts under a subject
// concept, each theme carrying its own orbiting phrases.
type Plan struct {
	Themes []PlanTheme `json:"themes"`
}

// PlanTheme is one proposed sub-concept.
type PlanTheme struct {
	Theme           string   `json:"theme"`
	OrbitingPhrases []string `json:"orbiting_phrases"`
}

const planPrompt = `You create concise hierarchical theme plans for a phrase.
Return ONLY valid JSON with the schema:
{ "themes": [ { "theme": string, "orbiting_phrases": [string, ...] }, ... ] }
Do not include markdown or extra keys.

Primary phrase: %s
%sGenerate 5-12 themes. Each theme should be a short phrase.
For each theme, provide 3-12 orbiting_phrases (short phrases) that relate to that theme.
Keep everything lower-case unless a proper noun.
`

// GeneratePlan asks the model for a theme plan for the subject phrase.
// The raw completion is parsed strictly; prose or malformed JSON fails
// with ErrSchemaMismatch.
func (g *Generator) GeneratePlan(ctx context.Context, subject, modifier string) (*Plan, llm.Usage, error) {
	modifierLine := ""
	if m := strings.TrimSpace(modifier); m != "" {
		modifierLine = fmt.Sprintf("Modifier: %s\n", m)
	}
	prompt := fmt.Sprintf(planPrompt, subject, modifierLine)

	raw, usage, err := g.LLM.Complete(ctx, prompt)
	if err != nil {
		return nil, usage, fmt.Errorf("plan generation failed: %w", err)
	}
	plan, err := ParsePlan(raw)
	if err != nil {
		return nil, usage, err
	}
	return plan, usage, nil
}

// ParsePlan parses a completion into a Plan. It tolerates markdown fences
// and surrounding prose (extracting the outermost JSON object), but the
// object itself must match the schema exactly.
func ParsePlan(raw string) (*Plan, error) {
	text := llm.StripMarkdownCodeFence(raw)

	// Models occasionally pad the JSON with prose; take the outermost
	// object if direct parsing fails.
	var plan Plan
	if err := strictUnmarshal(text, &plan); err != nil {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start == -1 || end <= start {
			return nil, fmt.Errorf("%w: no JSON object found", ErrSchemaMismatch)
		}
		if err := strictUnmarshal(text[start:end+1], &plan); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
	}

	if len(plan.Themes) == 0 {
		return nil, fmt.Errorf("%w: plan has no themes", ErrSchemaMismatch)
	}

	seen := make(map[string]bool)
	out := Plan{Themes: make([]PlanTheme, 0, len(plan.Themes))}
	for i, theme := range plan.Themes {
		name := strings.TrimSpace(theme.Theme)
		if name == "" {
			return nil, fmt.Errorf("%w: theme at index %d has empty name", ErrSchemaMismatch, i)
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		phrases := make([]string, 0, len(theme.OrbitingPhrases))
		phraseSeen := make(map[string]bool)
		for _, p := range theme.OrbitingPhrases {
			p = strings.TrimSpace(p)
			if p == "" || phraseSeen[p] {
				continue
			}
			phraseSeen[p] = true
			phrases = append(phrases, p)
		}
		out.Themes = append(out.Themes, PlanTheme{Theme: name, OrbitingPhrases: phrases})
	}

	return &out, nil
}

func strictUnmarshal(text string, v any) error {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// MarshalPayload renders a plan for artifact storage.
func (p *Plan) MarshalPayload() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan: %w", err)
	}
	return b, nil
}

// UnmarshalPlan restores a plan from an artifact payload, re-running the
// schema checks so a hand-edited payload cannot slip past apply.
func UnmarshalPlan(payload []byte) (*Plan, error) {
	return ParsePlan(string(payload))
}
