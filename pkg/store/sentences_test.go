package store

import (
	"context"
	"errors"
	"testing"
)

// TestSentences tests sentence creation, reference checks, and listing.
func TestSentences(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	a := mustConcept(t, store, "microgrid")
	b := mustConcept(t, store, "battery storage")

	snt, err := store.CreateSentence(ctx, []int64{a.ID, b.ID},
		"A microgrid pairs local generation with battery storage.")
	if err != nil {
		t.Fatalf("CreateSentence failed: %v", err)
	}

	got, err := store.GetSentence(ctx, snt.ID)
	if err != nil {
		t.Fatalf("GetSentence failed: %v", err)
	}
	if len(got.ConceptIDs) != 2 || got.ConceptIDs[0] != a.ID || got.ConceptIDs[1] != b.ID {
		t.Errorf("ConceptIDs mismatch: got %v", got.ConceptIDs)
	}

	// Unknown concept reference is rejected at creation time.
	_, err = store.CreateSentence(ctx, []int64{999}, "dangling")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	list, err := store.ListSentences(ctx, 10)
	if err != nil {
		t.Fatalf("ListSentences failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 sentence, got %d", len(list))
	}
}

// TestChildSentences tests phrase-level sentence storage.
func TestChildSentences(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	a := mustConcept(t, store, "microgrid")
	v, err := store.LatestVersion(ctx, a.ID)
	if err != nil {
		t.Fatalf("LatestVersion failed: %v", err)
	}
	phrase, err := store.AddPhrase(ctx, v.ID, "islanding capability", "")
	if err != nil {
		t.Fatalf("AddPhrase failed: %v", err)
	}

	snt, err := store.CreateSentence(ctx, []int64{a.ID}, "Microgrids can island from the wider grid.")
	if err != nil {
		t.Fatalf("CreateSentence failed: %v", err)
	}

	child, err := store.CreateChildSentence(ctx, snt.ID, []int64{phrase.ID},
		"Islanding capability lets the site ride out outages.")
	if err != nil {
		t.Fatalf("CreateChildSentence failed: %v", err)
	}
	if child.SentenceID != snt.ID {
		t.Errorf("SentenceID mismatch: got %d", child.SentenceID)
	}

	_, err = store.CreateChildSentence(ctx, snt.ID, []int64{999}, "dangling phrase")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown phrase, got %v", err)
	}

	_, err = store.CreateChildSentence(ctx, 999, nil, "dangling parent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown sentence, got %v", err)
	}

	children, err := store.ListChildSentences(ctx, snt.ID)
	if err != nil {
		t.Fatalf("ListChildSentences failed: %v", err)
	}
	if len(children) != 1 || children[0].PhraseIDs[0] != phrase.ID {
		t.Errorf("Children mismatch: %+v", children)
	}
}

// TestArtifacts tests staging, retrieval, and single consumption.
func TestArtifacts(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	concept := mustConcept(t, store, "microgrid")

	a, err := store.CreateArtifact(ctx, &Artifact{
		SubjectConceptID: concept.ID,
		Kind:             KindPlanSubconcepts,
		Payload:          []byte(`{"themes":[]}`),
		Model:            "gpt-4o-mini",
		TaskID:           1,
	})
	if err != nil {
		t.Fatalf("CreateArtifact failed: %v", err)
	}

	got, err := store.GetArtifact(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if string(got.Payload) != `{"themes":[]}` {
		t.Errorf("Payload mismatch: got %s", got.Payload)
	}

	list, err := store.ListArtifacts(ctx, concept.ID, 10)
	if err != nil {
		t.Fatalf("ListArtifacts failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 artifact, got %d", len(list))
	}

	if err := store.DeleteArtifact(ctx, a.ID); err != nil {
		t.Fatalf("DeleteArtifact failed: %v", err)
	}
	if _, err := store.GetArtifact(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected consumed artifact gone, got %v", err)
	}
	if err := store.DeleteArtifact(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected second delete to fail, got %v", err)
	}
}

// TestPhraseNotes tests direct note attachment and listing.
func TestPhraseNotes(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	concept := mustConcept(t, store, "microgrid")
	v, err := store.LatestVersion(ctx, concept.ID)
	if err != nil {
		t.Fatalf("LatestVersion failed: %v", err)
	}
	phrase, err := store.AddPhrase(ctx, v.ID, "islanding capability", "")
	if err != nil {
		t.Fatalf("AddPhrase failed: %v", err)
	}

	note, err := store.AddPhraseNote(ctx, &PhraseNote{
		PhraseID: phrase.ID,
		Kind:     KindPhraseNote,
		Text:     "From island: operating disconnected from the main grid.",
		Model:    "gpt-4o-mini",
		Modifier: "etymology",
	})
	if err != nil {
		t.Fatalf("AddPhraseNote failed: %v", err)
	}
	if note.ID == 0 {
		t.Error("Expected note id to be assigned")
	}

	notes, err := store.ListPhraseNotes(ctx, phrase.ID)
	if err != nil {
		t.Fatalf("ListPhraseNotes failed: %v", err)
	}
	if len(notes) != 1 || notes[0].Modifier != "etymology" {
		t.Errorf("Notes mismatch: %+v", notes)
	}

	_, err = store.AddPhraseNote(ctx, &PhraseNote{PhraseID: 999, Kind: KindPhraseNote, Text: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown phrase, got %v", err)
	}
}
