package generate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lexigraph/pkg/llm"
)

// fakeClient returns canned completions in order.
type fakeClient struct {
	responses []string
	err       error
	prompts   []string
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, llm.Usage, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", llm.Usage{}, f.err
	}
	if len(f.responses) == 0 {
		return "", llm.Usage{}, errors.New("no canned response")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, llm.Usage{TokensIn: 11, TokensOut: 23}, nil
}

func (f *fakeClient) CompleteWithSchema(ctx context.Context, prompt string, schema any) (llm.Usage, error) {
	return llm.Usage{}, errors.New("not used")
}

func (f *fakeClient) Model() string { return "fake-model" }

func TestParsePlan_Valid(t *testing.T) {
	raw := `{"themes": [
		{"theme": "battery storage", "orbiting_phrases": ["state of charge", "cycle life"]},
		{"theme": "islanding", "orbiting_phrases": ["transfer switch"]}
	]}`

	plan, err := ParsePlan(raw)
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	if len(plan.Themes) != 2 {
		t.Fatalf("Expected 2 themes, got %d", len(plan.Themes))
	}
	if plan.Themes[0].Theme != "battery storage" {
		t.Errorf("Theme mismatch: %q", plan.Themes[0].Theme)
	}
	if len(plan.Themes[0].OrbitingPhrases) != 2 {
		t.Errorf("Phrases mismatch: %v", plan.Themes[0].OrbitingPhrases)
	}
}

func TestParsePlan_MarkdownFence(t *testing.T) {
	raw := "```json\n{\"themes\": [{\"theme\": \"battery storage\", \"orbiting_phrases\": []}]}\n```"
	plan, err := ParsePlan(raw)
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	if len(plan.Themes) != 1 {
		t.Errorf("Expected 1 theme, got %d", len(plan.Themes))
	}
}

func TestParsePlan_SurroundingProse(t *testing.T) {
	raw := `Here is your plan:
{"themes": [{"theme": "battery storage", "orbiting_phrases": ["cycle life"]}]}
Hope this helps!`

	plan, err := ParsePlan(raw)
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	if len(plan.Themes) != 1 || plan.Themes[0].Theme != "battery storage" {
		t.Errorf("Themes mismatch: %+v", plan.Themes)
	}
}

func TestParsePlan_Prose(t *testing.T) {
	_, err := ParsePlan("I think good themes would be batteries and inverters.")
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Expected ErrSchemaMismatch, got %v", err)
	}
}

func TestParsePlan_EmptyThemes(t *testing.T) {
	_, err := ParsePlan(`{"themes": []}`)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Expected ErrSchemaMismatch, got %v", err)
	}
}

func TestParsePlan_EmptyThemeName(t *testing.T) {
	_, err := ParsePlan(`{"themes": [{"theme": "  ", "orbiting_phrases": ["x"]}]}`)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Expected ErrSchemaMismatch, got %v", err)
	}
}

func TestParsePlan_ExtraKeys(t *testing.T) {
	_, err := ParsePlan(`{"themes": [{"theme": "x", "orbiting_phrases": [], "confidence": 0.9}]}`)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Expected ErrSchemaMismatch for extra keys, got %v", err)
	}
}

func TestParsePlan_DedupesThemesAndPhrases(t *testing.T) {
	raw := `{"themes": [
		{"theme": "battery storage", "orbiting_phrases": ["cycle life", "cycle life", " ", "depth of discharge"]},
		{"theme": "battery storage", "orbiting_phrases": ["ignored"]}
	]}`

	plan, err := ParsePlan(raw)
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	if len(plan.Themes) != 1 {
		t.Fatalf("Expected duplicate theme collapsed, got %d themes", len(plan.Themes))
	}
	phrases := plan.Themes[0].OrbitingPhrases
	if len(phrases) != 2 || phrases[0] != "cycle life" || phrases[1] != "depth of discharge" {
		t.Errorf("Phrases mismatch: %v", phrases)
	}
}

func TestGeneratePlan_PromptContainsSubjectAndModifier(t *testing.T) {
	client := &fakeClient{responses: []string{`{"themes": [{"theme": "x", "orbiting_phrases": []}]}`}}
	g := NewGenerator(client)

	if _, _, err := g.GeneratePlan(context.Background(), "microgrid", "technical"); err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("Expected 1 call, got %d", len(client.prompts))
	}
	prompt := client.prompts[0]
	for _, want := range []string{"Primary phrase: microgrid", "Modifier: technical", "orbiting_phrases"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGeneratePlan_UpstreamError(t *testing.T) {
	wantErr := errors.New("connection refused")
	g := NewGenerator(&fakeClient{err: wantErr})

	_, _, err := g.GeneratePlan(context.Background(), "microgrid", "")
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected upstream error passed through, got %v", err)
	}
	if errors.Is(err, ErrSchemaMismatch) {
		t.Error("Upstream failure must not be classified as schema mismatch")
	}
}

func TestPlanPayloadRoundTrip(t *testing.T) {
	plan := &Plan{Themes: []PlanTheme{{Theme: "battery storage", OrbitingPhrases: []string{"cycle life"}}}}
	payload, err := plan.MarshalPayload()
	if err != nil {
		t.Fatalf("MarshalPayload failed: %v", err)
	}
	restored, err := UnmarshalPlan(payload)
	if err != nil {
		t.Fatalf("UnmarshalPlan failed: %v", err)
	}
	if len(restored.Themes) != 1 || restored.Themes[0].Theme != "battery storage" {
		t.Errorf("Round trip mismatch: %+v", restored)
	}
}
