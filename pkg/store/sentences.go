package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

func marshalIDs(ids []int64) (string, error) {
	if ids == nil {
		ids = []int64{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("failed to marshal id list: %w", err)
	}
	return string(b), nil
}

func unmarshalIDs(raw string) ([]int64, error) {
	ids := []int64{}
	if raw == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("failed to unmarshal id list: %w", err)
	}
	return ids, nil
}

// CreateSentence stores a sentence referencing concepts. Referenced ids
// are validated now; the references are not foreign keys, so a later
// concept delete leaves the sentence with dangling ids by design of the
// corpus tables.
func (s session) CreateSentence(ctx context.Context, conceptIDs []int64, text string) (*Sentence, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("sentence text must not be empty")
	}
	for _, id := range conceptIDs {
		if _, err := s.GetConcept(ctx, id); err != nil {
			return nil, err
		}
	}

	raw, err := marshalIDs(conceptIDs)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO sentences (concept_ids, text, created_at, updated_at)
		VALUES (?, ?, ?, ?)`, raw, text, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create sentence: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read sentence id: %w", err)
	}
	return &Sentence{ID: id, ConceptIDs: append([]int64{}, conceptIDs...), Text: text, CreatedAt: now, UpdatedAt: now}, nil
}

// GetSentence retrieves a sentence by id.
func (s session) GetSentence(ctx context.Context, id int64) (*Sentence, error) {
	var snt Sentence
	var raw string
	err := s.q.QueryRowContext(ctx, `
		SELECT id, concept_ids, text, created_at, updated_at
		FROM sentences WHERE id = ?`, id).
		Scan(&snt.ID, &raw, &snt.Text, &snt.CreatedAt, &snt.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sentence %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sentence: %w", err)
	}
	if snt.ConceptIDs, err = unmarshalIDs(raw); err != nil {
		return nil, err
	}
	return &snt, nil
}

// ListSentences returns up to limit sentences, newest first.
func (s session) ListSentences(ctx context.Context, limit int) ([]*Sentence, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, concept_ids, text, created_at, updated_at
		FROM sentences ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sentences: %w", err)
	}
	defer rows.Close()

	sentences := []*Sentence{}
	for rows.Next() {
		var snt Sentence
		var raw string
		if err := rows.Scan(&snt.ID, &raw, &snt.Text, &snt.CreatedAt, &snt.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sentence: %w", err)
		}
		if snt.ConceptIDs, err = unmarshalIDs(raw); err != nil {
			return nil, err
		}
		sentences = append(sentences, &snt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sentences: %w", err)
	}
	return sentences, nil
}

// CreateChildSentence stores a phrase-level sentence under a parent
// sentence. All referenced phrases must exist at creation time.
func (s session) CreateChildSentence(ctx context.Context, sentenceID int64, phraseIDs []int64, text string) (*ChildSentence, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("child sentence text must not be empty")
	}
	if _, err := s.GetSentence(ctx, sentenceID); err != nil {
		return nil, err
	}
	for _, id := range phraseIDs {
		var one int
		err := s.q.QueryRowContext(ctx, "SELECT 1 FROM phrases WHERE id = ?", id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("phrase %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check phrase: %w", err)
		}
	}

	raw, err := marshalIDs(phraseIDs)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO child_sentences (sentence_id, phrase_ids, text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, sentenceID, raw, text, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create child sentence: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read child sentence id: %w", err)
	}
	return &ChildSentence{ID: id, SentenceID: sentenceID, PhraseIDs: append([]int64{}, phraseIDs...), Text: text, CreatedAt: now, UpdatedAt: now}, nil
}

// ListChildSentences returns the children of a sentence, newest first.
func (s session) ListChildSentences(ctx context.Context, sentenceID int64) ([]*ChildSentence, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, sentence_id, phrase_ids, text, created_at, updated_at
		FROM child_sentences WHERE sentence_id = ? ORDER BY id DESC`, sentenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list child sentences: %w", err)
	}
	defer rows.Close()

	children := []*ChildSentence{}
	for rows.Next() {
		var cs ChildSentence
		var raw string
		if err := rows.Scan(&cs.ID, &cs.SentenceID, &raw, &cs.Text, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan child sentence: %w", err)
		}
		if cs.PhraseIDs, err = unmarshalIDs(raw); err != nil {
			return nil, err
		}
		children = append(children, &cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating child sentences: %w", err)
	}
	return children, nil
}
