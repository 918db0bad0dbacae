package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateArtifact stages a parsed generation result for later apply.
func (s session) CreateArtifact(ctx context.Context, a *Artifact) (*Artifact, error) {
	if !a.Kind.Valid() {
		return nil, fmt.Errorf("unknown generation kind %q", a.Kind)
	}
	if len(a.Payload) == 0 {
		return nil, fmt.Errorf("artifact payload must not be empty")
	}
	if _, err := s.GetConcept(ctx, a.SubjectConceptID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO staged_artifacts
			(subject_concept_id, kind, payload, model, modifier, task_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.SubjectConceptID, a.Kind, string(a.Payload), a.Model, a.Modifier, a.TaskID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact id: %w", err)
	}

	out := *a
	out.ID = id
	out.CreatedAt = now
	return &out, nil
}

// GetArtifact retrieves a staged artifact. Applied artifacts are deleted,
// so a consumed id comes back as ErrNotFound.
func (s session) GetArtifact(ctx context.Context, id int64) (*Artifact, error) {
	var a Artifact
	var payload string
	err := s.q.QueryRowContext(ctx, `
		SELECT id, subject_concept_id, kind, payload, model, modifier, task_id, created_at
		FROM staged_artifacts WHERE id = ?`, id).
		Scan(&a.ID, &a.SubjectConceptID, &a.Kind, &payload, &a.Model, &a.Modifier, &a.TaskID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	a.Payload = []byte(payload)
	return &a, nil
}

// ListArtifacts returns up to limit staged artifacts for a subject
// concept, newest first.
func (s session) ListArtifacts(ctx context.Context, subjectConceptID int64, limit int) ([]*Artifact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, subject_concept_id, kind, payload, model, modifier, task_id, created_at
		FROM staged_artifacts WHERE subject_concept_id = ?
		ORDER BY id DESC LIMIT ?`, subjectConceptID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []*Artifact{}
	for rows.Next() {
		var a Artifact
		var payload string
		if err := rows.Scan(&a.ID, &a.SubjectConceptID, &a.Kind, &payload, &a.Model, &a.Modifier, &a.TaskID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.Payload = []byte(payload)
		artifacts = append(artifacts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}
	return artifacts, nil
}

// DeleteArtifact discards a staged artifact. Apply calls this inside its
// transaction so an artifact is consumed at most once.
func (s session) DeleteArtifact(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM staged_artifacts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return requireAffected(res, fmt.Sprintf("artifact %d", id))
}

// AddPhraseNote attaches a generated note to a phrase.
func (s session) AddPhraseNote(ctx context.Context, n *PhraseNote) (*PhraseNote, error) {
	var one int
	err := s.q.QueryRowContext(ctx, "SELECT 1 FROM phrases WHERE id = ?", n.PhraseID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("phrase %d: %w", n.PhraseID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check phrase: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO phrase_notes (phrase_id, kind, text, model, modifier, task_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.PhraseID, n.Kind, n.Text, n.Model, n.Modifier, n.TaskID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to add phrase note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read note id: %w", err)
	}

	out := *n
	out.ID = id
	out.CreatedAt = now
	return &out, nil
}

// ListPhraseNotes returns the notes for a phrase, newest first.
func (s session) ListPhraseNotes(ctx context.Context, phraseID int64) ([]*PhraseNote, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, phrase_id, kind, text, model, modifier, task_id, created_at
		FROM phrase_notes WHERE phrase_id = ? ORDER BY id DESC`, phraseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phrase notes: %w", err)
	}
	defer rows.Close()

	notes := []*PhraseNote{}
	for rows.Next() {
		var n PhraseNote
		if err := rows.Scan(&n.ID, &n.PhraseID, &n.Kind, &n.Text, &n.Model, &n.Modifier, &n.TaskID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan phrase note: %w", err)
		}
		notes = append(notes, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating phrase notes: %w", err)
	}
	return notes, nil
}
