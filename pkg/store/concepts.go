package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateConcept creates a concept and mints its version 1.
func (s session) CreateConcept(ctx context.Context, text string) (*Concept, *ConceptVersion, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, fmt.Errorf("concept text must not be empty")
	}

	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO concepts (text, created_at) VALUES (?, ?)", text, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, fmt.Errorf("concept %q: %w", text, ErrConflict)
		}
		return nil, nil, fmt.Errorf("failed to create concept: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read concept id: %w", err)
	}

	vres, err := s.q.ExecContext(ctx,
		"INSERT INTO concept_versions (concept_id, version, created_at) VALUES (?, 1, ?)", id, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create initial version: %w", err)
	}
	vid, err := vres.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read version id: %w", err)
	}

	concept := &Concept{ID: id, Text: text, CreatedAt: now}
	version := &ConceptVersion{ID: vid, ConceptID: id, Version: 1, CreatedAt: now}
	return concept, version, nil
}

// GetConcept retrieves a concept by id.
func (s session) GetConcept(ctx context.Context, id int64) (*Concept, error) {
	var c Concept
	err := s.q.QueryRowContext(ctx,
		"SELECT id, text, created_at FROM concepts WHERE id = ?", id).
		Scan(&c.ID, &c.Text, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("concept %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get concept: %w", err)
	}
	return &c, nil
}

// FindConceptByText retrieves a concept by its exact text.
func (s session) FindConceptByText(ctx context.Context, text string) (*Concept, error) {
	var c Concept
	err := s.q.QueryRowContext(ctx,
		"SELECT id, text, created_at FROM concepts WHERE text = ?", text).
		Scan(&c.ID, &c.Text, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("concept %q: %w", text, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find concept: %w", err)
	}
	return &c, nil
}

// ListConcepts returns all concepts ordered by text.
func (s session) ListConcepts(ctx context.Context) ([]*Concept, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, text, created_at FROM concepts ORDER BY text, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list concepts: %w", err)
	}
	defer rows.Close()

	var concepts []*Concept
	for rows.Next() {
		var c Concept
		if err := rows.Scan(&c.ID, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan concept: %w", err)
		}
		concepts = append(concepts, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating concepts: %w", err)
	}
	return concepts, nil
}

// NextVersion mints a new version for a concept, numbered one above the
// current maximum. Earlier versions are left untouched.
func (s session) NextVersion(ctx context.Context, conceptID int64) (*ConceptVersion, error) {
	if _, err := s.GetConcept(ctx, conceptID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	// Single statement so max+1 cannot race with a concurrent mint.
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO concept_versions (concept_id, version, created_at)
		SELECT ?, COALESCE(MAX(version), 0) + 1, ?
		FROM concept_versions WHERE concept_id = ?`,
		conceptID, now, conceptID)
	if err != nil {
		return nil, fmt.Errorf("failed to mint version: %w", err)
	}
	vid, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read version id: %w", err)
	}

	var v ConceptVersion
	err = s.q.QueryRowContext(ctx,
		"SELECT id, concept_id, version, created_at FROM concept_versions WHERE id = ?", vid).
		Scan(&v.ID, &v.ConceptID, &v.Version, &v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read minted version: %w", err)
	}
	return &v, nil
}

// LatestVersion returns the highest-numbered version of a concept.
func (s session) LatestVersion(ctx context.Context, conceptID int64) (*ConceptVersion, error) {
	var v ConceptVersion
	err := s.q.QueryRowContext(ctx, `
		SELECT id, concept_id, version, created_at
		FROM concept_versions
		WHERE concept_id = ?
		ORDER BY version DESC LIMIT 1`, conceptID).
		Scan(&v.ID, &v.ConceptID, &v.Version, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("concept %d has no versions: %w", conceptID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest version: %w", err)
	}
	return &v, nil
}

// GetVersion returns a version with its phrases and child concepts.
func (s session) GetVersion(ctx context.Context, versionID int64) (*VersionDetail, error) {
	var d VersionDetail
	err := s.q.QueryRowContext(ctx,
		"SELECT id, concept_id, version, created_at FROM concept_versions WHERE id = ?", versionID).
		Scan(&d.ID, &d.ConceptID, &d.Version, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("version %d: %w", versionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	if d.Phrases, err = s.listPhrases(ctx, versionID); err != nil {
		return nil, err
	}
	if d.Children, err = s.listChildren(ctx, versionID); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s session) listPhrases(ctx context.Context, versionID int64) ([]*Phrase, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, version_id, text, link, created_at, updated_at
		FROM phrases WHERE version_id = ? ORDER BY id`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phrases: %w", err)
	}
	defer rows.Close()

	phrases := []*Phrase{}
	for rows.Next() {
		var p Phrase
		if err := rows.Scan(&p.ID, &p.VersionID, &p.Text, &p.Link, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan phrase: %w", err)
		}
		phrases = append(phrases, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating phrases: %w", err)
	}
	return phrases, nil
}

func (s session) listChildren(ctx context.Context, versionID int64) ([]*Concept, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT c.id, c.text, c.created_at
		FROM concept_edges e
		JOIN concepts c ON c.id = e.child_concept_id
		WHERE e.parent_version_id = ?
		ORDER BY e.id`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	children := []*Concept{}
	for rows.Next() {
		var c Concept
		if err := rows.Scan(&c.ID, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan child concept: %w", err)
		}
		children = append(children, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating children: %w", err)
	}
	return children, nil
}

// GetPhrase retrieves a phrase by id.
func (s session) GetPhrase(ctx context.Context, id int64) (*Phrase, error) {
	var p Phrase
	err := s.q.QueryRowContext(ctx,
		"SELECT id, version_id, text, link, created_at, updated_at FROM phrases WHERE id = ?", id).
		Scan(&p.ID, &p.VersionID, &p.Text, &p.Link, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("phrase %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get phrase: %w", err)
	}
	return &p, nil
}

// AddPhrase inserts a phrase under a version.
func (s session) AddPhrase(ctx context.Context, versionID int64, text, link string) (*Phrase, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("phrase text must not be empty")
	}
	if err := s.versionExists(ctx, versionID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO phrases (version_id, text, link, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, versionID, text, link, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to add phrase: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read phrase id: %w", err)
	}
	return &Phrase{ID: id, VersionID: versionID, Text: text, Link: link, CreatedAt: now, UpdatedAt: now}, nil
}

// UpdatePhrase rewrites a phrase's text and link.
func (s session) UpdatePhrase(ctx context.Context, id int64, text, link string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("phrase text must not be empty")
	}
	res, err := s.q.ExecContext(ctx,
		"UPDATE phrases SET text = ?, link = ?, updated_at = ? WHERE id = ?",
		text, link, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update phrase: %w", err)
	}
	return requireAffected(res, fmt.Sprintf("phrase %d", id))
}

// DeletePhrase removes a phrase and, via cascade, its notes.
func (s session) DeletePhrase(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM phrases WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete phrase: %w", err)
	}
	return requireAffected(res, fmt.Sprintf("phrase %d", id))
}

// MovePhrase re-parents a phrase under another version.
func (s session) MovePhrase(ctx context.Context, id, toVersionID int64) error {
	if err := s.versionExists(ctx, toVersionID); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		"UPDATE phrases SET version_id = ?, updated_at = ? WHERE id = ?",
		toVersionID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to move phrase: %w", err)
	}
	return requireAffected(res, fmt.Sprintf("phrase %d", id))
}

// AddEdge links a parent version to a child concept. Re-adding an
// existing edge is a no-op.
func (s session) AddEdge(ctx context.Context, parentVersionID, childConceptID int64) error {
	if err := s.versionExists(ctx, parentVersionID); err != nil {
		return err
	}
	if _, err := s.GetConcept(ctx, childConceptID); err != nil {
		return err
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO concept_edges (parent_version_id, child_concept_id, created_at)
		VALUES (?, ?, ?)`, parentVersionID, childConceptID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add edge: %w", err)
	}
	return nil
}

// RemoveEdge deletes an edge if present.
func (s session) RemoveEdge(ctx context.Context, parentVersionID, childConceptID int64) error {
	_, err := s.q.ExecContext(ctx,
		"DELETE FROM concept_edges WHERE parent_version_id = ? AND child_concept_id = ?",
		parentVersionID, childConceptID)
	if err != nil {
		return fmt.Errorf("failed to remove edge: %w", err)
	}
	return nil
}

// ListRoots returns every concept with no inbound edge from any version
// of any concept, each expanded with its full version history. Rootness
// is derived from the edge relation, never stored.
func (s session) ListRoots(ctx context.Context) ([]*RootConcept, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT c.id, c.text, c.created_at
		FROM concepts c
		WHERE NOT EXISTS (
			SELECT 1 FROM concept_edges e WHERE e.child_concept_id = c.id
		)
		ORDER BY c.text, c.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roots: %w", err)
	}
	defer rows.Close()

	roots := []*RootConcept{}
	for rows.Next() {
		var r RootConcept
		if err := rows.Scan(&r.ID, &r.Text, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan root: %w", err)
		}
		roots = append(roots, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roots: %w", err)
	}

	for _, r := range roots {
		versions, err := s.listVersionDetails(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		r.Versions = versions
	}
	return roots, nil
}

func (s session) listVersionDetails(ctx context.Context, conceptID int64) ([]*VersionDetail, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, concept_id, version, created_at
		FROM concept_versions WHERE concept_id = ? ORDER BY version`, conceptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	details := []*VersionDetail{}
	for rows.Next() {
		var d VersionDetail
		if err := rows.Scan(&d.ID, &d.ConceptID, &d.Version, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		details = append(details, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	for _, d := range details {
		if d.Phrases, err = s.listPhrases(ctx, d.ID); err != nil {
			return nil, err
		}
		if d.Children, err = s.listChildren(ctx, d.ID); err != nil {
			return nil, err
		}
	}
	return details, nil
}

// DeleteConcept removes a concept. Cascades cover its versions, their
// phrases and outgoing edges, and any inbound edges pointing at it.
func (s session) DeleteConcept(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM concepts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete concept: %w", err)
	}
	return requireAffected(res, fmt.Sprintf("concept %d", id))
}

// DeleteVersion removes one version and its dependents. The last version
// of a concept cannot be deleted; delete the concept instead.
func (s session) DeleteVersion(ctx context.Context, id int64) error {
	var conceptID int64
	err := s.q.QueryRowContext(ctx,
		"SELECT concept_id FROM concept_versions WHERE id = ?", id).Scan(&conceptID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("version %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up version: %w", err)
	}

	var count int
	err = s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM concept_versions WHERE concept_id = ?", conceptID).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count versions: %w", err)
	}
	if count <= 1 {
		return fmt.Errorf("version %d of concept %d: %w", id, conceptID, ErrLastVersion)
	}

	if _, err := s.q.ExecContext(ctx, "DELETE FROM concept_versions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete version: %w", err)
	}
	return nil
}

func (s session) versionExists(ctx context.Context, versionID int64) error {
	var one int
	err := s.q.QueryRowContext(ctx,
		"SELECT 1 FROM concept_versions WHERE id = ?", versionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("version %d: %w", versionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check version: %w", err)
	}
	return nil
}

// requireAffected converts a zero-row write into ErrNotFound.
func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// isUniqueViolation matches the driver's constraint error by message; the
// pure-Go driver does not export a typed error for it.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
