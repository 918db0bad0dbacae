package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Storage operations are written against it so the same code runs both
// standalone and inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// session implements the storage operations against a querier. It is
// embedded by both SQLiteStore and Tx.
type session struct {
	q querier
}

// SQLiteStore is a SQLite-backed implementation of ConceptStore,
// TaskQueue, CrossReferenceStore, and ArtifactStore.
type SQLiteStore struct {
	db *sql.DB
	session
}

// Tx is a transactional view of the store. Session operations invoked on
// it see and produce uncommitted state until InTx commits.
type Tx struct {
	session
}

var (
	_ ConceptStore        = (*SQLiteStore)(nil)
	_ TaskQueue           = (*SQLiteStore)(nil)
	_ CrossReferenceStore = (*SQLiteStore)(nil)
	_ ArtifactStore       = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (creating if necessary) a SQLite database at dbPath
// and ensures the schema exists. The dbPath can be a file path or
// ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The worker polls the queue while HTTP handlers write; one pooled
	// connection serializes writers, WAL keeps readers cheap.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, session: session{q: db}}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// InTx runs fn inside a single transaction, committing on a nil return and
// rolling back otherwise. The apply engine relies on this to land a staged
// plan atomically.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	t := &Tx{session: session{q: dbtx}}
	if err := fn(t); err != nil {
		if rbErr := dbtx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS concepts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS concept_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		concept_id INTEGER NOT NULL REFERENCES concepts(id) ON DELETE CASCADE,
		version INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE(concept_id, version)
	);

	CREATE TABLE IF NOT EXISTS phrases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version_id INTEGER NOT NULL REFERENCES concept_versions(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		link TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_phrases_version ON phrases(version_id);

	CREATE TABLE IF NOT EXISTS concept_edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_version_id INTEGER NOT NULL REFERENCES concept_versions(id) ON DELETE CASCADE,
		child_concept_id INTEGER NOT NULL REFERENCES concepts(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		UNIQUE(parent_version_id, child_concept_id)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_child ON concept_edges(child_concept_id);

	CREATE TABLE IF NOT EXISTS sentences (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		concept_ids TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS child_sentences (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sentence_id INTEGER NOT NULL REFERENCES sentences(id) ON DELETE CASCADE,
		phrase_ids TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS generation_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_concept_id INTEGER NOT NULL REFERENCES concepts(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		identifier TEXT NOT NULL DEFAULT '{}',
		modifier TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'queued'
			CHECK(status IN ('queued', 'running', 'done', 'error')),
		error TEXT NOT NULL DEFAULT '',
		result_artifact_id INTEGER,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON generation_tasks(status, id);
	CREATE INDEX IF NOT EXISTS idx_tasks_subject ON generation_tasks(subject_concept_id, kind, status);

	CREATE TABLE IF NOT EXISTS staged_artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_concept_id INTEGER NOT NULL REFERENCES concepts(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		modifier TEXT NOT NULL DEFAULT '',
		task_id INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_subject ON staged_artifacts(subject_concept_id, id);

	CREATE TABLE IF NOT EXISTS phrase_notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		phrase_id INTEGER NOT NULL REFERENCES phrases(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		text TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		modifier TEXT NOT NULL DEFAULT '',
		task_id INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}
