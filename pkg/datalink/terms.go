// Package datalink links concept tree nodes to rows in the City of
// Chicago contracts dataset on the Socrata open-data API. Node names are
// expanded into search terms, the terms become a SoQL where clause, and
// match counts plus sample rows are attached per node.
package datalink

import (
	"regexp"
	"strings"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"to": true, "of": true, "in": true, "on": true, "for": true,
	"with": true, "by": true, "from": true, "at": true, "is": true,
	"are": true, "was": true, "were": true, "be": true, "been": true,
	"being": true, "this": true, "that": true, "these": true,
	"those": true, "it": true, "as": true, "into": true, "over": true,
	"under": true,
	// "city of chicago" is handled as a special case, so the bare token
	// is noise everywhere else.
	"city": true,
}

var synonyms = map[string][]string{
	"solar":     {"photovoltaic", "pv"},
	"microgrid": {"micro grid", "distributed energy", "distributed generation"},
	"panels":    {"panel"},
	"contract":  {"agreement"},
	"chicago":   {"city of chicago"},
}

var specialCaseTerms = map[string][]string{
	"solar panels":    {"solar", "photovoltaic", "pv", "panel"},
	"city of chicago": {"city of chicago"},
}

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	nonAlnumRE   = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeText lowercases and collapses whitespace.
func NormalizeText(s string) string {
	return whitespaceRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// Tokenize splits a name on non-alphanumeric runs and drops stopwords.
func Tokenize(name string) []string {
	var tokens []string
	for _, t := range nonAlnumRE.Split(strings.ToLower(name), -1) {
		if t != "" && !stopwords[t] {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// ExpandTerms turns a node name into deduplicated search terms: special
// cases first, then tokens with their synonyms, then the full phrase when
// it is short enough to be informative.
func ExpandTerms(name string, minTermLen, maxTerms int) []string {
	n := NormalizeText(name)

	if special, ok := specialCaseTerms[n]; ok {
		if len(special) > maxTerms {
			return special[:maxTerms]
		}
		return special
	}

	var terms []string
	for _, t := range Tokenize(n) {
		if len(t) < minTermLen {
			continue
		}
		terms = append(terms, t)
		terms = append(terms, synonyms[t]...)
	}

	if len(n) >= minTermLen && len(strings.Fields(n)) <= 6 {
		terms = append(terms, n)
	}

	seen := map[string]bool{}
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = NormalizeText(t)
		if len(t) < minTermLen || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) >= maxTerms {
			break
		}
	}
	return out
}
