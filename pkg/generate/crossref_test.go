package generate

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRenderOntologySnippet(t *testing.T) {
	snippet := RenderOntologySnippet([]OntologyConcept{
		{
			ConceptID: 1,
			Text:      "microgrid",
			Phrases:   []OntologyPhrase{{ID: 3, Text: "islanding capability"}},
			Children:  []string{"battery storage"},
		},
	})

	for _, want := range []string{"Concept 1: microgrid", "phrase 3: islanding capability", "children: battery storage"} {
		if !strings.Contains(snippet, want) {
			t.Errorf("Snippet missing %q:\n%s", want, snippet)
		}
	}
}

func TestParseSentenceBlocks_Valid(t *testing.T) {
	raw := `1. Sentence: Islanding capability lets a microgrid ride through grid outages.
   Phrases: [3]
2. Sentence: Battery cycle life limits how often the store can island.
   Phrases: [3, 7]
`
	known := map[int64]bool{3: true, 7: true}

	drafts, err := ParseSentenceBlocks(raw, known)
	if err != nil {
		t.Fatalf("ParseSentenceBlocks failed: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("Expected 2 drafts, got %d", len(drafts))
	}
	if drafts[0].Text != "Islanding capability lets a microgrid ride through grid outages." {
		t.Errorf("Text mismatch: %q", drafts[0].Text)
	}
	if len(drafts[0].PhraseIDs) != 1 || drafts[0].PhraseIDs[0] != 3 {
		t.Errorf("PhraseIDs mismatch: %v", drafts[0].PhraseIDs)
	}
	if len(drafts[1].PhraseIDs) != 2 {
		t.Errorf("PhraseIDs mismatch: %v", drafts[1].PhraseIDs)
	}
}

func TestParseSentenceBlocks_SkipsMalformed(t *testing.T) {
	raw := `1. Sentence: Good block about islanding.
   Phrases: [3]
2. Sentence: Cites a phrase the ontology never listed.
   Phrases: [99]
3. Sentence: Missing its phrases line entirely.
4. Sentence: Empty id list.
   Phrases: []
`
	known := map[int64]bool{3: true}

	drafts, err := ParseSentenceBlocks(raw, known)
	if err != nil {
		t.Fatalf("ParseSentenceBlocks failed: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("Expected only the good block, got %d drafts", len(drafts))
	}
	if drafts[0].PhraseIDs[0] != 3 {
		t.Errorf("PhraseIDs mismatch: %v", drafts[0].PhraseIDs)
	}
}

func TestParseSentenceBlocks_NothingUsable(t *testing.T) {
	_, err := ParseSentenceBlocks("The model decided to chat instead of following the format.", nil)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Expected ErrSchemaMismatch, got %v", err)
	}
}

func TestParseSentenceBlocks_ParenNumbering(t *testing.T) {
	raw := "1) Sentence: Alternate numbering still parses.\n   Phrases: [5]\n"
	drafts, err := ParseSentenceBlocks(raw, map[int64]bool{5: true})
	if err != nil {
		t.Fatalf("ParseSentenceBlocks failed: %v", err)
	}
	if len(drafts) != 1 {
		t.Errorf("Expected 1 draft, got %d", len(drafts))
	}
}

func TestSynthesizeSentences(t *testing.T) {
	client := &fakeClient{responses: []string{
		"1. Sentence: Islanding keeps the lights on.\n   Phrases: [3]\n",
	}}
	g := NewGenerator(client)

	concepts := []OntologyConcept{{
		ConceptID: 1,
		Text:      "microgrid",
		Phrases:   []OntologyPhrase{{ID: 3, Text: "islanding capability"}},
	}}

	drafts, usage, err := g.SynthesizeSentences(context.Background(), "Microgrids can island.", concepts, 1)
	if err != nil {
		t.Fatalf("SynthesizeSentences failed: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("Expected 1 draft, got %d", len(drafts))
	}
	if usage.TokensIn != 11 || usage.TokensOut != 23 {
		t.Errorf("Usage not surfaced: %+v", usage)
	}

	prompt := client.prompts[0]
	if !strings.Contains(prompt, "Microgrids can island.") {
		t.Errorf("Prompt missing source sentence:\n%s", prompt)
	}
	if !strings.Contains(prompt, "phrase 3: islanding capability") {
		t.Errorf("Prompt missing ontology snippet:\n%s", prompt)
	}
}

func TestWriteNote(t *testing.T) {
	client := &fakeClient{responses: []string{"  Islanding capability is the ability to disconnect.  "}}
	g := NewGenerator(client)

	note, _, err := g.WriteNote(context.Background(), "islanding capability", "energy / microgrid", "technical")
	if err != nil {
		t.Fatalf("WriteNote failed: %v", err)
	}
	if note != "Islanding capability is the ability to disconnect." {
		t.Errorf("Note mismatch: %q", note)
	}

	prompt := client.prompts[0]
	for _, want := range []string{"islanding capability", "energy / microgrid", "technical"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q", want)
		}
	}
}

func TestWriteNote_Empty(t *testing.T) {
	g := NewGenerator(&fakeClient{responses: []string{"   "}})

	_, _, err := g.WriteNote(context.Background(), "islanding capability", "microgrid", "")
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Expected ErrSchemaMismatch for empty note, got %v", err)
	}
}

func TestAppendPhrases(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"phrases": ["depth of discharge", "Cycle Life", "round-trip efficiency", ""]}`,
	}}
	g := NewGenerator(client)

	phrases, _, err := g.AppendPhrases(context.Background(), "battery storage", []string{"cycle life"}, "")
	if err != nil {
		t.Fatalf("AppendPhrases failed: %v", err)
	}
	// "Cycle Life" collides case-insensitively with the existing phrase.
	if len(phrases) != 2 {
		t.Fatalf("Expected 2 phrases, got %d: %v", len(phrases), phrases)
	}
	if phrases[0] != "depth of discharge" || phrases[1] != "round-trip efficiency" {
		t.Errorf("Phrases mismatch: %v", phrases)
	}

	if !strings.Contains(client.prompts[0], "- cycle life") {
		t.Errorf("Prompt missing existing phrase listing:\n%s", client.prompts[0])
	}
}

func TestAppendPhrases_AllDuplicates(t *testing.T) {
	g := NewGenerator(&fakeClient{responses: []string{`{"phrases": ["cycle life"]}`}})

	_, _, err := g.AppendPhrases(context.Background(), "battery storage", []string{"cycle life"}, "")
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Expected ErrSchemaMismatch when nothing new, got %v", err)
	}
}
