package store

import (
	"context"
	"testing"
)

func TestGraphCounts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	counts, err := s.GraphCounts(ctx)
	if err != nil {
		t.Fatalf("GraphCounts failed: %v", err)
	}
	if counts.Concepts != 0 || counts.Sentences != 0 {
		t.Fatalf("expected empty graph, got %+v", counts)
	}

	parent, pv, err := s.CreateConcept(ctx, "microgrid")
	if err != nil {
		t.Fatalf("CreateConcept failed: %v", err)
	}
	child, _, err := s.CreateConcept(ctx, "battery storage")
	if err != nil {
		t.Fatalf("CreateConcept failed: %v", err)
	}
	if _, err := s.AddPhrase(ctx, pv.ID, "islands from the main grid", ""); err != nil {
		t.Fatalf("AddPhrase failed: %v", err)
	}
	if err := s.AddEdge(ctx, pv.ID, child.ID); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	if _, err := s.CreateSentence(ctx, []int64{parent.ID, child.ID}, "a microgrid relies on battery storage"); err != nil {
		t.Fatalf("CreateSentence failed: %v", err)
	}

	counts, err = s.GraphCounts(ctx)
	if err != nil {
		t.Fatalf("GraphCounts failed: %v", err)
	}
	if counts.Concepts != 2 {
		t.Errorf("concepts = %d, want 2", counts.Concepts)
	}
	if counts.Versions != 2 {
		t.Errorf("versions = %d, want 2", counts.Versions)
	}
	if counts.Phrases != 1 {
		t.Errorf("phrases = %d, want 1", counts.Phrases)
	}
	if counts.Edges != 1 {
		t.Errorf("edges = %d, want 1", counts.Edges)
	}
	if counts.Sentences != 1 {
		t.Errorf("sentences = %d, want 1", counts.Sentences)
	}
}
