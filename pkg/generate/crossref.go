package generate

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"lexigraph/pkg/llm"
)

// OntologyConcept is the slice of the graph rendered into a cross-reference
// prompt: a concept's display text plus its latest version's phrases and
// child concepts.
type OntologyConcept struct {
	ConceptID int64
	Text      string
	Phrases   []OntologyPhrase
	Children  []string
}

// OntologyPhrase is a phrase with the id the model must cite.
type OntologyPhrase struct {
	ID   int64
	Text string
}

// SentenceDraft is one parsed block of the model's cross-reference output,
// ready to be stored as a child sentence.
type SentenceDraft struct {
	Text      string
	PhraseIDs []int64
}

const crossrefPrompt = `You write precise single sentences that connect phrases from a concept ontology.

Source sentence:
%s

Ontology:
%s
Write %d numbered blocks. Each block must have exactly this form:

1. Sentence: <one sentence that narrows or supports the source sentence>
   Phrases: [<comma-separated phrase ids the sentence draws on>]

Use only phrase ids listed in the ontology. Every block needs at least one id.
Do not add any other lines.
`

// RenderOntologySnippet renders the concepts around a sentence into the
// textual form the cross-reference prompt embeds.
func RenderOntologySnippet(concepts []OntologyConcept) string {
	var b strings.Builder
	for _, c := range concepts {
		fmt.Fprintf(&b, "Concept %d: %s\n", c.ConceptID, c.Text)
		for _, p := range c.Phrases {
			fmt.Fprintf(&b, "  phrase %d: %s\n", p.ID, p.Text)
		}
		if len(c.Children) > 0 {
			fmt.Fprintf(&b, "  children: %s\n", strings.Join(c.Children, ", "))
		}
	}
	return b.String()
}

// SynthesizeSentences asks the model for child sentences narrowing the
// source sentence, citing phrase ids from the ontology snippet.
func (g *Generator) SynthesizeSentences(ctx context.Context, sourceText string, concepts []OntologyConcept, count int) ([]SentenceDraft, llm.Usage, error) {
	if count <= 0 {
		count = 3
	}
	prompt := fmt.Sprintf(crossrefPrompt, sourceText, RenderOntologySnippet(concepts), count)

	raw, usage, err := g.LLM.Complete(ctx, prompt)
	if err != nil {
		return nil, usage, fmt.Errorf("sentence synthesis failed: %w", err)
	}

	known := make(map[int64]bool)
	for _, c := range concepts {
		for _, p := range c.Phrases {
			known[p.ID] = true
		}
	}
	drafts, err := ParseSentenceBlocks(raw, known)
	if err != nil {
		return nil, usage, err
	}
	return drafts, usage, nil
}

var (
	sentenceLineRE = regexp.MustCompile(`^\s*\d+[.)]\s*Sentence:\s*(.+)$`)
	phrasesLineRE  = regexp.MustCompile(`^\s*Phrases:\s*\[([0-9,\s]*)\]\s*$`)
)

// ParseSentenceBlocks parses the numbered-block output into drafts. Blocks
// that are malformed or cite unknown phrase ids are skipped; zero usable
// blocks is a schema mismatch. knownPhrases of nil skips the id check.
func ParseSentenceBlocks(raw string, knownPhrases map[int64]bool) ([]SentenceDraft, error) {
	lines := strings.Split(raw, "\n")
	drafts := []SentenceDraft{}

	for i := 0; i < len(lines); i++ {
		m := sentenceLineRE.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[1])
		if text == "" || i+1 >= len(lines) {
			continue
		}

		pm := phrasesLineRE.FindStringSubmatch(lines[i+1])
		if pm == nil {
			continue
		}

		ids, ok := parseIDList(pm[1], knownPhrases)
		if !ok || len(ids) == 0 {
			log.Printf("lexigraph: skipping sentence block with invalid or unknown phrase ids: %s", pm[1])
			continue
		}

		drafts = append(drafts, SentenceDraft{Text: text, PhraseIDs: ids})
		i++
	}

	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: no usable sentence blocks", ErrSchemaMismatch)
	}
	return drafts, nil
}

func parseIDList(s string, known map[int64]bool) ([]int64, bool) {
	ids := []int64{}
	seen := make(map[int64]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, false
		}
		if known != nil && !known[id] {
			return nil, false
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, true
}
