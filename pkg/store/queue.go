package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const taskColumns = `id, subject_concept_id, kind, identifier, modifier,
	status, error, result_artifact_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var identJSON string
	var artifactID sql.NullInt64
	err := row.Scan(&t.ID, &t.SubjectConceptID, &t.Kind, &identJSON, &t.Modifier,
		&t.Status, &t.Error, &artifactID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if identJSON != "" {
		if err := json.Unmarshal([]byte(identJSON), &t.Identifier); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task identifier: %w", err)
		}
	}
	if artifactID.Valid {
		t.ResultArtifactID = &artifactID.Int64
	}
	return &t, nil
}

// Enqueue inserts a queued task for (subject, kind). When a task for the
// same pair is already queued or running the existing task is returned
// with deduped=true; terminal tasks never block a new request. The dedup
// check and the insert run in one transaction, so concurrent requests for
// the same pair cannot each slip past the check.
func (s *SQLiteStore) Enqueue(ctx context.Context, subjectConceptID int64, kind TaskKind, ident TaskIdentifier, modifier string) (*Task, bool, error) {
	var task *Task
	var deduped bool
	err := s.InTx(ctx, func(tx *Tx) error {
		var err error
		task, deduped, err = tx.enqueue(ctx, subjectConceptID, kind, ident, modifier)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return task, deduped, nil
}

func (s session) enqueue(ctx context.Context, subjectConceptID int64, kind TaskKind, ident TaskIdentifier, modifier string) (*Task, bool, error) {
	if !kind.Valid() {
		return nil, false, fmt.Errorf("unknown generation kind %q", kind)
	}
	if _, err := s.GetConcept(ctx, subjectConceptID); err != nil {
		return nil, false, err
	}

	row := s.q.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM generation_tasks
		WHERE subject_concept_id = ? AND kind = ? AND status IN ('queued', 'running')
		ORDER BY id LIMIT 1`, subjectConceptID, kind)
	existing, err := scanTask(row)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to check for active task: %w", err)
	}

	identJSON, err := json.Marshal(ident)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal task identifier: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO generation_tasks
			(subject_concept_id, kind, identifier, modifier, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', ?, ?)`,
		subjectConceptID, kind, string(identJSON), modifier, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to enqueue task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read task id: %w", err)
	}

	return &Task{
		ID:               id,
		SubjectConceptID: subjectConceptID,
		Kind:             kind,
		Identifier:       ident,
		Modifier:         modifier,
		Status:           StatusQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, false, nil
}

// ClaimNext transitions the oldest queued task to running and returns it.
// Returns (nil, nil) when nothing is queued. The select and the status
// flip happen in one transaction, so two pollers cannot claim one task.
func (s *SQLiteStore) ClaimNext(ctx context.Context) (*Task, error) {
	var claimed *Task
	err := s.InTx(ctx, func(tx *Tx) error {
		row := tx.q.QueryRowContext(ctx, `
			SELECT `+taskColumns+`
			FROM generation_tasks
			WHERE status = 'queued'
			ORDER BY id LIMIT 1`)
		t, err := scanTask(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to select queued task: %w", err)
		}

		now := time.Now().UTC()
		res, err := tx.q.ExecContext(ctx, `
			UPDATE generation_tasks SET status = 'running', updated_at = ?
			WHERE id = ? AND status = 'queued'`, now, t.ID)
		if err != nil {
			return fmt.Errorf("failed to claim task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			// Raced by another claimant; the next poll will pick up
			// whatever is left.
			return nil
		}

		t.Status = StatusRunning
		t.UpdatedAt = now
		claimed = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkDone finishes a running task. The conditional update enforces the
// lifecycle: terminal tasks stay terminal, queued tasks cannot skip ahead.
func (s session) MarkDone(ctx context.Context, taskID int64, resultArtifactID *int64) error {
	var artifact sql.NullInt64
	if resultArtifactID != nil {
		artifact = sql.NullInt64{Int64: *resultArtifactID, Valid: true}
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE generation_tasks
		SET status = 'done', result_artifact_id = ?, updated_at = ?
		WHERE id = ? AND status = 'running'`,
		artifact, time.Now().UTC(), taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task done: %w", err)
	}
	return s.requireTransition(ctx, res, taskID)
}

// MarkError fails a running task with a message for later inspection.
func (s session) MarkError(ctx context.Context, taskID int64, message string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE generation_tasks
		SET status = 'error', error = ?, updated_at = ?
		WHERE id = ? AND status = 'running'`,
		message, time.Now().UTC(), taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task errored: %w", err)
	}
	return s.requireTransition(ctx, res, taskID)
}

// requireTransition distinguishes a missing task from one in the wrong
// state after a conditional terminal update matched zero rows.
func (s session) requireTransition(ctx context.Context, res sql.Result, taskID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	return fmt.Errorf("task %d is %s, not running: %w", taskID, t.Status, ErrInvalidState)
}

// GetTask returns a snapshot of a task.
func (s session) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM generation_tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks returns up to limit tasks for a subject concept, newest first.
// A zero subjectConceptID lists across all concepts.
func (s session) ListTasks(ctx context.Context, subjectConceptID int64, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + taskColumns + " FROM generation_tasks"
	args := []any{}
	if subjectConceptID != 0 {
		query += " WHERE subject_concept_id = ?"
		args = append(args, subjectConceptID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// QueueDepth returns the number of queued tasks.
func (s session) QueueDepth(ctx context.Context) (int64, error) {
	var count int64
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM generation_tasks WHERE status = 'queued'").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queued tasks: %w", err)
	}
	return count, nil
}

// RequeueStale returns running tasks older than olderThan to queued.
// Tasks never retry on their own; this only recovers work orphaned by a
// crash between claim and terminal transition.
func (s session) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.q.ExecContext(ctx, `
		UPDATE generation_tasks SET status = 'queued', updated_at = ?
		WHERE status = 'running' AND updated_at < ?`,
		time.Now().UTC(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
