// Package store provides SQLite-backed storage for the lexigraph concept
// graph, its generation task queue, and staged generation artifacts.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Concept is a named node in the vocabulary graph. Text is unique and is
// never mutated after creation; renames create a new concept instead.
type Concept struct {
	ID        int64     `json:"conceptId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConceptVersion is an append-only history entry for a concept. For a given
// concept the version numbers are unique and strictly increasing; the
// current version is the one with the highest number. Superseded versions
// are never mutated.
type ConceptVersion struct {
	ID        int64     `json:"versionId"`
	ConceptID int64     `json:"conceptId"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
}

// Phrase is a short associated text item owned by exactly one concept
// version. Moving a phrase to another version is an explicit re-parenting
// operation, not part of version history.
type Phrase struct {
	ID        int64     `json:"phraseId"`
	VersionID int64     `json:"versionId"`
	Text      string    `json:"text"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConceptEdge links a parent concept version to a child concept. Edges
// attach to a version, not the concept, so the graph shape at any historic
// version stays reproducible when later versions change the child set.
type ConceptEdge struct {
	ID              int64     `json:"edgeId"`
	ParentVersionID int64     `json:"parentVersionId"`
	ChildConceptID  int64     `json:"childConceptId"`
	CreatedAt       time.Time `json:"createdAt"`
}

// VersionDetail is a version together with its owned phrases and the
// concepts its outgoing edges point at.
type VersionDetail struct {
	ConceptVersion
	Phrases  []*Phrase  `json:"phrases"`
	Children []*Concept `json:"childConcepts"`
}

// RootConcept is a concept with no inbound edge anywhere in the edge
// relation, expanded with its full version history.
type RootConcept struct {
	Concept
	Versions []*VersionDetail `json:"versions"`
}

// Sentence is free text referencing a set of concepts, used for
// corpus-style querying. Referenced ids are checked at creation time only.
type Sentence struct {
	ID         int64     `json:"sentenceId"`
	ConceptIDs []int64   `json:"conceptIds"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ChildSentence is a narrower sentence derived from a parent sentence,
// referencing specific phrases.
type ChildSentence struct {
	ID         int64     `json:"childSentenceId"`
	SentenceID int64     `json:"sentenceId"`
	PhraseIDs  []int64   `json:"phraseIds"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TaskKind identifies one of the supported generation pipelines.
type TaskKind string

const (
	// KindPlanSubconcepts asks the model for a plan of new sub-concepts,
	// each with orbiting phrases. The result is staged for confirmation.
	KindPlanSubconcepts TaskKind = "plan_subconcepts"

	// KindAppendPhrases asks the model for additional orbiting phrases and
	// writes them directly to the subject's latest version.
	KindAppendPhrases TaskKind = "append_phrases"

	// KindPhraseNote asks the model for a free-text note about a single
	// phrase and attaches it directly, no staging step.
	KindPhraseNote TaskKind = "phrase_note"

	// KindCrossRefSentences synthesizes child sentences for an existing
	// sentence from the ontology around its concepts.
	KindCrossRefSentences TaskKind = "crossref_sentences"
)

// Valid reports whether k is a known generation kind.
func (k TaskKind) Valid() bool {
	switch k {
	case KindPlanSubconcepts, KindAppendPhrases, KindPhraseNote, KindCrossRefSentences:
		return true
	}
	return false
}

// Staged reports whether tasks of this kind produce a staged artifact
// awaiting explicit apply rather than mutating the graph directly.
func (k TaskKind) Staged() bool {
	return k == KindPlanSubconcepts
}

// TaskStatus is the lifecycle state of a generation task.
type TaskStatus string

const (
	StatusQueued  TaskStatus = "queued"
	StatusRunning TaskStatus = "running"
	StatusDone    TaskStatus = "done"
	StatusError   TaskStatus = "error"
)

// Terminal reports whether no further transition is allowed from s.
func (s TaskStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// CanTransition reports whether the queued→running→done|error lifecycle
// permits moving from s to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case StatusQueued:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusDone || next == StatusError
	}
	return false
}

// TaskIdentifier re-resolves what triggered a task. Fields are set per
// kind: ConceptID always, PhraseID for phrase notes, SentenceID for
// cross-reference synthesis.
type TaskIdentifier struct {
	ConceptID  int64 `json:"conceptId,omitempty"`
	PhraseID   int64 `json:"phraseId,omitempty"`
	SentenceID int64 `json:"sentenceId,omitempty"`
}

// Task is one queued unit of generation work.
type Task struct {
	ID               int64          `json:"taskId"`
	SubjectConceptID int64          `json:"subjectConceptId"`
	Kind             TaskKind       `json:"kind"`
	Identifier       TaskIdentifier `json:"identifier"`
	Modifier         string         `json:"modifier,omitempty"`
	Status           TaskStatus     `json:"status"`
	Error            string         `json:"error,omitempty"`
	ResultArtifactID *int64         `json:"resultArtifactId,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Artifact is the ephemeral, parsed output of a staged generation task.
// It is consumed (deleted) exactly once by the apply engine.
type Artifact struct {
	ID               int64           `json:"artifactId"`
	SubjectConceptID int64           `json:"subjectConceptId"`
	Kind             TaskKind        `json:"kind"`
	Payload          json.RawMessage `json:"payload"`
	Model            string          `json:"model,omitempty"`
	Modifier         string          `json:"modifier,omitempty"`
	TaskID           int64           `json:"taskId"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// PhraseNote is a model-written note attached to a phrase by a
// direct-mutation generation kind.
type PhraseNote struct {
	ID        int64     `json:"noteId"`
	PhraseID  int64     `json:"phraseId"`
	Kind      TaskKind  `json:"kind"`
	Text      string    `json:"text"`
	Model     string    `json:"model,omitempty"`
	Modifier  string    `json:"modifier,omitempty"`
	TaskID    int64     `json:"taskId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConceptStore owns concepts, their version history, per-version phrases,
// and the version→concept edge relation.
type ConceptStore interface {
	// CreateConcept creates a concept and its version 1.
	// Returns ErrConflict if the text already exists.
	CreateConcept(ctx context.Context, text string) (*Concept, *ConceptVersion, error)

	// GetConcept retrieves a concept by id. Returns ErrNotFound if absent.
	GetConcept(ctx context.Context, id int64) (*Concept, error)

	// FindConceptByText retrieves a concept by its exact text.
	// Returns ErrNotFound if absent.
	FindConceptByText(ctx context.Context, text string) (*Concept, error)

	// ListConcepts returns all concepts ordered by text.
	ListConcepts(ctx context.Context) ([]*Concept, error)

	// NextVersion mints a new version numbered max(existing)+1, or 1 when
	// none exist. Returns ErrNotFound for an unknown concept.
	NextVersion(ctx context.Context, conceptID int64) (*ConceptVersion, error)

	// LatestVersion returns the highest-numbered version of a concept.
	// Returns ErrNotFound when the concept or its versions are absent.
	LatestVersion(ctx context.Context, conceptID int64) (*ConceptVersion, error)

	// GetVersion returns a version with its phrases and child concepts.
	GetVersion(ctx context.Context, versionID int64) (*VersionDetail, error)

	// GetPhrase retrieves a phrase by id. Returns ErrNotFound if absent.
	GetPhrase(ctx context.Context, id int64) (*Phrase, error)

	// AddPhrase inserts a phrase under a version.
	// Returns ErrNotFound if the version does not exist.
	AddPhrase(ctx context.Context, versionID int64, text, link string) (*Phrase, error)

	// UpdatePhrase rewrites a phrase's text and link.
	UpdatePhrase(ctx context.Context, id int64, text, link string) error

	// DeletePhrase removes a phrase.
	DeletePhrase(ctx context.Context, id int64) error

	// MovePhrase re-parents a phrase under a different version.
	MovePhrase(ctx context.Context, id, toVersionID int64) error

	// AddEdge inserts a parent-version→child-concept edge. Duplicate
	// inserts are no-ops. Returns ErrNotFound if either side is absent.
	AddEdge(ctx context.Context, parentVersionID, childConceptID int64) error

	// RemoveEdge deletes an edge if present.
	RemoveEdge(ctx context.Context, parentVersionID, childConceptID int64) error

	// ListRoots returns every concept with zero inbound edges, each with
	// its full version history, phrases, and child concepts.
	ListRoots(ctx context.Context) ([]*RootConcept, error)

	// DeleteConcept cascades over versions, phrases, and edges.
	DeleteConcept(ctx context.Context, id int64) error

	// DeleteVersion removes one version and its dependents. Deleting the
	// only remaining version of a concept returns ErrLastVersion.
	DeleteVersion(ctx context.Context, id int64) error
}

// TaskQueue is a durable ordered queue of generation requests with
// at-most-one in-flight task per (subject concept, kind).
type TaskQueue interface {
	// Enqueue inserts a queued task, or returns the existing task with
	// deduped=true when one for the same (subject, kind) is already
	// queued or running.
	Enqueue(ctx context.Context, subjectConceptID int64, kind TaskKind, ident TaskIdentifier, modifier string) (task *Task, deduped bool, err error)

	// ClaimNext atomically transitions the oldest queued task to running
	// and returns it, or (nil, nil) when the queue is empty.
	ClaimNext(ctx context.Context) (*Task, error)

	// MarkDone finishes a running task, optionally recording the staged
	// artifact it produced. Returns ErrInvalidState unless running.
	MarkDone(ctx context.Context, taskID int64, resultArtifactID *int64) error

	// MarkError fails a running task with a human-readable message.
	// Returns ErrInvalidState unless running.
	MarkError(ctx context.Context, taskID int64, message string) error

	// GetTask returns a snapshot of a task.
	GetTask(ctx context.Context, id int64) (*Task, error)

	// ListTasks returns up to limit tasks, newest first, optionally
	// filtered to one subject concept (0 lists all).
	ListTasks(ctx context.Context, subjectConceptID int64, limit int) ([]*Task, error)

	// QueueDepth returns the number of queued tasks.
	QueueDepth(ctx context.Context) (int64, error)

	// RequeueStale returns running tasks older than olderThan to queued
	// and reports how many were swept. Recovery for worker crashes.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CrossReferenceStore owns free-text sentences referencing concepts and
// phrase-level child sentences.
type CrossReferenceStore interface {
	// CreateSentence stores a sentence. Every referenced concept must
	// exist at creation time.
	CreateSentence(ctx context.Context, conceptIDs []int64, text string) (*Sentence, error)

	// GetSentence retrieves a sentence by id.
	GetSentence(ctx context.Context, id int64) (*Sentence, error)

	// ListSentences returns up to limit sentences, newest first.
	ListSentences(ctx context.Context, limit int) ([]*Sentence, error)

	// CreateChildSentence stores a phrase-level sentence under a parent.
	// Every referenced phrase must exist at creation time.
	CreateChildSentence(ctx context.Context, sentenceID int64, phraseIDs []int64, text string) (*ChildSentence, error)

	// ListChildSentences returns the children of a sentence, newest first.
	ListChildSentences(ctx context.Context, sentenceID int64) ([]*ChildSentence, error)
}

// ArtifactStore owns staged artifacts and direct-mutation phrase notes.
type ArtifactStore interface {
	// CreateArtifact stages a parsed generation result.
	CreateArtifact(ctx context.Context, a *Artifact) (*Artifact, error)

	// GetArtifact retrieves a staged artifact. Returns ErrNotFound once
	// it has been consumed.
	GetArtifact(ctx context.Context, id int64) (*Artifact, error)

	// ListArtifacts returns up to limit staged artifacts for a subject
	// concept, newest first.
	ListArtifacts(ctx context.Context, subjectConceptID int64, limit int) ([]*Artifact, error)

	// DeleteArtifact discards a staged artifact.
	DeleteArtifact(ctx context.Context, id int64) error

	// AddPhraseNote attaches a generated note to a phrase.
	AddPhraseNote(ctx context.Context, n *PhraseNote) (*PhraseNote, error)

	// ListPhraseNotes returns the notes for a phrase, newest first.
	ListPhraseNotes(ctx context.Context, phraseID int64) ([]*PhraseNote, error)
}

// ErrNotFound indicates a referenced concept, version, phrase, sentence,
// task, or artifact does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness violation (duplicate concept text).
var ErrConflict = errors.New("already exists")

// ErrInvalidState indicates an operation was attempted against the wrong
// lifecycle state (terminal task transition, wrong artifact kind).
var ErrInvalidState = errors.New("invalid state")

// ErrLastVersion indicates an attempt to delete the only remaining
// version of a concept; delete the concept instead.
var ErrLastVersion = errors.New("cannot delete the only version of a concept")
