// Package apply turns staged plan artifacts into concept graph mutations.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lexigraph/pkg/generate"
	"lexigraph/pkg/store"
)

// Result describes what one apply changed.
type Result struct {
	SubjectConceptID int64         `json:"subjectConceptId"`
	NewVersionID     int64         `json:"newVersionId"`
	NewVersion       int           `json:"newVersion"`
	Children         []ChildResult `json:"children"`
}

// ChildResult is one theme landed by an apply.
type ChildResult struct {
	ConceptID   int64  `json:"conceptId"`
	Text        string `json:"text"`
	VersionID   int64  `json:"versionId"`
	Version     int    `json:"version"`
	Created     bool   `json:"created"`
	PhraseCount int    `json:"phraseCount"`
}

// Engine applies staged plans against the store.
type Engine struct {
	store  *store.SQLiteStore
	logger *slog.Logger
}

// NewEngine creates an apply engine. logger may be nil.
func NewEngine(s *store.SQLiteStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{store: s, logger: logger}
}

// ApplyPlan consumes a staged plan artifact in a single transaction:
// the subject concept gains a new version, each proposed theme becomes a
// child concept (reused with a fresh version when the text already
// exists), orbiting phrases land under the child's new version, and the
// artifact is deleted. Partial failure rolls everything back, leaving the
// artifact available for another attempt.
func (e *Engine) ApplyPlan(ctx context.Context, artifactID int64) (*Result, error) {
	artifact, err := e.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact.Kind != store.KindPlanSubconcepts {
		return nil, fmt.Errorf("artifact %d has kind %s, not a plan: %w",
			artifactID, artifact.Kind, store.ErrInvalidState)
	}

	plan, err := generate.UnmarshalPlan(artifact.Payload)
	if err != nil {
		return nil, fmt.Errorf("artifact %d payload: %w", artifactID, err)
	}

	var result *Result
	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		parentVersion, err := tx.NextVersion(ctx, artifact.SubjectConceptID)
		if err != nil {
			return err
		}

		result = &Result{
			SubjectConceptID: artifact.SubjectConceptID,
			NewVersionID:     parentVersion.ID,
			NewVersion:       parentVersion.Version,
			Children:         make([]ChildResult, 0, len(plan.Themes)),
		}

		for _, theme := range plan.Themes {
			child, err := e.landTheme(ctx, tx, parentVersion.ID, theme)
			if err != nil {
				return err
			}
			result.Children = append(result.Children, *child)
		}

		return tx.DeleteArtifact(ctx, artifactID)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("applied plan",
		"artifact_id", artifactID,
		"subject_concept_id", result.SubjectConceptID,
		"new_version", result.NewVersion,
		"children", len(result.Children))
	return result, nil
}

// landTheme reuses or creates the theme's concept, always minting a fresh
// version so earlier phrase sets survive as history, then links it under
// the parent's new version.
func (e *Engine) landTheme(ctx context.Context, tx *store.Tx, parentVersionID int64, theme generate.PlanTheme) (*ChildResult, error) {
	var (
		child   *store.Concept
		version *store.ConceptVersion
		created bool
	)

	existing, err := tx.FindConceptByText(ctx, theme.Theme)
	switch {
	case err == nil:
		child = existing
		version, err = tx.NextVersion(ctx, child.ID)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, store.ErrNotFound):
		child, version, err = tx.CreateConcept(ctx, theme.Theme)
		if err != nil {
			return nil, err
		}
		created = true
	default:
		return nil, err
	}

	if err := tx.AddEdge(ctx, parentVersionID, child.ID); err != nil {
		return nil, err
	}

	for _, phrase := range theme.OrbitingPhrases {
		if _, err := tx.AddPhrase(ctx, version.ID, phrase, ""); err != nil {
			return nil, err
		}
	}

	return &ChildResult{
		ConceptID:   child.ID,
		Text:        child.Text,
		VersionID:   version.ID,
		Version:     version.Version,
		Created:     created,
		PhraseCount: len(theme.OrbitingPhrases),
	}, nil
}
