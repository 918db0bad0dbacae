// Package worker runs the background generation loop: it claims queued
// tasks one at a time, calls the model, and lands the result either as a
// staged artifact or as a direct graph mutation, depending on the kind.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lexigraph/pkg/generate"
	"lexigraph/pkg/llm"
	"lexigraph/pkg/metrics"
	"lexigraph/pkg/store"
	"lexigraph/pkg/trace"
)

// Config holds the worker's tunables.
type Config struct {
	// PollInterval is the sleep between empty-queue polls (default: 1s).
	PollInterval time.Duration

	// StaleTaskAge, when positive, enables the recovery sweep that returns
	// running tasks older than this to queued. A task only stays running
	// that long if a previous process died mid-task.
	StaleTaskAge time.Duration

	// SentenceCount is how many child sentences a cross-reference task
	// asks for (default: 3).
	SentenceCount int
}

// Worker owns the claim-generate-store loop. One Worker runs at a time per
// database; the single-writer SQLite setup is sized for exactly that.
type Worker struct {
	store   *store.SQLiteStore
	gen     *generate.Generator
	cfg     Config
	metrics metrics.Collector
	tracer  trace.Exporter
	logger  *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithMetrics sets the metrics collector (default: no-op).
func WithMetrics(c metrics.Collector) Option {
	return func(w *Worker) {
		w.metrics = c
	}
}

// WithExporter sets the trace exporter (default: no-op).
func WithExporter(e trace.Exporter) Option {
	return func(w *Worker) {
		w.tracer = e
	}
}

// WithLogger sets the structured logger (default: discard).
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = l
	}
}

// New creates a worker over the given store and generator.
func New(s *store.SQLiteStore, g *generate.Generator, cfg Config, opts ...Option) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.SentenceCount <= 0 {
		cfg.SentenceCount = 3
	}

	w := &Worker{
		store:   s,
		gen:     g,
		cfg:     cfg,
		metrics: &metrics.NoopCollector{},
		tracer:  &trace.NoopExporter{},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drives the loop until ctx is cancelled. It drains every claimable
// task before sleeping, so a burst of enqueues is worked off back to back.
func (w *Worker) Run(ctx context.Context) {
	if w.cfg.StaleTaskAge > 0 {
		w.sweepStale(ctx)
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var sweepC <-chan time.Time
	if w.cfg.StaleTaskAge > 0 {
		sweeper := time.NewTicker(w.cfg.StaleTaskAge)
		defer sweeper.Stop()
		sweepC = sweeper.C
	}

	for {
		w.drain(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-sweepC:
			w.sweepStale(ctx)
		}
	}
}

// drain claims and runs tasks until the queue is empty or ctx is done.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		task, err := w.store.ClaimNext(ctx)
		if err != nil {
			w.logger.Error("failed to claim task", "error", err)
			return
		}
		if task == nil {
			return
		}
		w.runTask(ctx, task)
	}
}

func (w *Worker) sweepStale(ctx context.Context) {
	n, err := w.store.RequeueStale(ctx, w.cfg.StaleTaskAge)
	if err != nil {
		w.logger.Error("failed to requeue stale tasks", "error", err)
		return
	}
	if n > 0 {
		w.logger.Warn("requeued stale tasks", "count", n, "olderThan", w.cfg.StaleTaskAge)
	}
}

// runTask executes one claimed task and records its terminal status. A
// handler error fails the task, never the loop.
func (w *Worker) runTask(ctx context.Context, task *store.Task) {
	runID := uuid.NewString()
	start := time.Now()
	rec := &trace.TraceRecord{
		Timestamp: start.UTC(),
		RunID:     runID,
		TaskID:    task.ID,
		Kind:      string(task.Kind),
		IDs: map[string]interface{}{
			"subjectConceptId": task.SubjectConceptID,
		},
	}
	log := w.logger.With("runId", runID, "taskId", task.ID, "kind", task.Kind)
	log.Info("task claimed")

	artifactID, err := w.dispatch(ctx, task, rec)

	// Terminal marking must survive shutdown, or the task is stranded in
	// running until the stale sweep finds it.
	doneCtx := context.WithoutCancel(ctx)
	rec.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		rec.Status = string(store.StatusError)
		rec.ErrorType = trace.ClassifyError(err)
		w.metrics.RecordError(doneCtx, "task_"+string(task.Kind), rec.ErrorType)
		if markErr := w.store.MarkError(doneCtx, task.ID, err.Error()); markErr != nil {
			log.Error("failed to mark task error", "error", markErr)
		}
		log.Warn("task failed", "error", err, "errorType", rec.ErrorType)
	} else {
		rec.Status = string(store.StatusDone)
		if markErr := w.store.MarkDone(doneCtx, task.ID, artifactID); markErr != nil {
			log.Error("failed to mark task done", "error", markErr)
		}
		log.Info("task done", "durationMs", rec.DurationMs)
	}

	w.metrics.RecordTask(doneCtx, string(task.Kind), rec.Status, rec.DurationMs)
	if depth, derr := w.store.QueueDepth(doneCtx); derr == nil {
		w.metrics.SetQueueDepth(doneCtx, depth)
	}
	if expErr := w.tracer.Export(doneCtx, rec); expErr != nil {
		log.Error("failed to export trace", "error", expErr)
	}
}

// dispatch routes a task to its kind handler. Only staged kinds return an
// artifact id.
func (w *Worker) dispatch(ctx context.Context, task *store.Task, rec *trace.TraceRecord) (*int64, error) {
	switch task.Kind {
	case store.KindPlanSubconcepts:
		return w.runPlan(ctx, task, rec)
	case store.KindAppendPhrases:
		return nil, w.runAppendPhrases(ctx, task, rec)
	case store.KindPhraseNote:
		return nil, w.runPhraseNote(ctx, task, rec)
	case store.KindCrossRefSentences:
		return nil, w.runCrossRef(ctx, task, rec)
	default:
		return nil, fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

// runPlan generates a sub-concept plan and stages it as an artifact. The
// graph is untouched until the artifact is applied.
func (w *Worker) runPlan(ctx context.Context, task *store.Task, rec *trace.TraceRecord) (*int64, error) {
	subject, err := w.store.GetConcept(ctx, task.SubjectConceptID)
	if err != nil {
		return nil, err
	}

	genStart := time.Now()
	plan, usage, err := w.gen.GeneratePlan(ctx, subject.Text, task.Modifier)
	if err != nil {
		addSpan(rec, "generate", genStart, err, usageCounters(usage, nil))
		return nil, err
	}
	addSpan(rec, "generate", genStart, nil, usageCounters(usage, map[string]int64{"themeCount": int64(len(plan.Themes))}))

	payload, err := plan.MarshalPayload()
	if err != nil {
		return nil, err
	}

	storeStart := time.Now()
	artifact, err := w.store.CreateArtifact(ctx, &store.Artifact{
		SubjectConceptID: task.SubjectConceptID,
		Kind:             task.Kind,
		Payload:          payload,
		Model:            w.gen.Model(),
		Modifier:         task.Modifier,
		TaskID:           task.ID,
	})
	addSpan(rec, "store", storeStart, err, nil)
	if err != nil {
		return nil, err
	}

	rec.IDs["artifactId"] = artifact.ID
	return &artifact.ID, nil
}

// runAppendPhrases asks for extra phrases and writes them directly to the
// subject's latest version, all or nothing.
func (w *Worker) runAppendPhrases(ctx context.Context, task *store.Task, rec *trace.TraceRecord) error {
	subject, err := w.store.GetConcept(ctx, task.SubjectConceptID)
	if err != nil {
		return err
	}
	latest, err := w.store.LatestVersion(ctx, task.SubjectConceptID)
	if err != nil {
		return err
	}
	detail, err := w.store.GetVersion(ctx, latest.ID)
	if err != nil {
		return err
	}
	existing := make([]string, 0, len(detail.Phrases))
	for _, p := range detail.Phrases {
		existing = append(existing, p.Text)
	}

	genStart := time.Now()
	phrases, usage, err := w.gen.AppendPhrases(ctx, subject.Text, existing, task.Modifier)
	if err != nil {
		addSpan(rec, "generate", genStart, err, usageCounters(usage, nil))
		return err
	}
	addSpan(rec, "generate", genStart, nil, usageCounters(usage, map[string]int64{"phraseCount": int64(len(phrases))}))

	storeStart := time.Now()
	err = w.store.InTx(ctx, func(tx *store.Tx) error {
		for _, text := range phrases {
			if _, err := tx.AddPhrase(ctx, latest.ID, text, ""); err != nil {
				return err
			}
		}
		return nil
	})
	addSpan(rec, "store", storeStart, err, nil)
	if err != nil {
		return err
	}

	rec.IDs["versionId"] = latest.ID
	return nil
}

// runPhraseNote writes a model note about one phrase, using the subject
// concept's text as context.
func (w *Worker) runPhraseNote(ctx context.Context, task *store.Task, rec *trace.TraceRecord) error {
	if task.Identifier.PhraseID == 0 {
		return fmt.Errorf("phrase note task %d has no phrase id", task.ID)
	}
	phrase, err := w.store.GetPhrase(ctx, task.Identifier.PhraseID)
	if err != nil {
		return err
	}
	subject, err := w.store.GetConcept(ctx, task.SubjectConceptID)
	if err != nil {
		return err
	}

	genStart := time.Now()
	text, usage, err := w.gen.WriteNote(ctx, phrase.Text, subject.Text, task.Modifier)
	addSpan(rec, "generate", genStart, err, usageCounters(usage, nil))
	if err != nil {
		return err
	}

	storeStart := time.Now()
	note, err := w.store.AddPhraseNote(ctx, &store.PhraseNote{
		PhraseID: phrase.ID,
		Kind:     task.Kind,
		Text:     text,
		Model:    w.gen.Model(),
		Modifier: task.Modifier,
		TaskID:   task.ID,
	})
	addSpan(rec, "store", storeStart, err, nil)
	if err != nil {
		return err
	}

	rec.IDs["phraseId"] = phrase.ID
	rec.IDs["noteId"] = note.ID
	return nil
}

// runCrossRef renders the ontology around a sentence's concepts, asks for
// narrower sentences, and stores each draft as a child sentence.
func (w *Worker) runCrossRef(ctx context.Context, task *store.Task, rec *trace.TraceRecord) error {
	if task.Identifier.SentenceID == 0 {
		return fmt.Errorf("cross-reference task %d has no sentence id", task.ID)
	}
	sentence, err := w.store.GetSentence(ctx, task.Identifier.SentenceID)
	if err != nil {
		return err
	}

	concepts := make([]generate.OntologyConcept, 0, len(sentence.ConceptIDs))
	for _, conceptID := range sentence.ConceptIDs {
		oc, err := w.loadOntologyConcept(ctx, conceptID)
		if err != nil {
			return err
		}
		concepts = append(concepts, *oc)
	}

	genStart := time.Now()
	drafts, usage, err := w.gen.SynthesizeSentences(ctx, sentence.Text, concepts, w.cfg.SentenceCount)
	if err != nil {
		addSpan(rec, "generate", genStart, err, usageCounters(usage, nil))
		return err
	}
	addSpan(rec, "generate", genStart, nil, usageCounters(usage, map[string]int64{"sentenceCount": int64(len(drafts))}))

	storeStart := time.Now()
	err = w.store.InTx(ctx, func(tx *store.Tx) error {
		for _, draft := range drafts {
			if _, err := tx.CreateChildSentence(ctx, sentence.ID, draft.PhraseIDs, draft.Text); err != nil {
				return err
			}
		}
		return nil
	})
	addSpan(rec, "store", storeStart, err, nil)
	if err != nil {
		return err
	}

	rec.IDs["sentenceId"] = sentence.ID
	return nil
}

// loadOntologyConcept snapshots a concept's latest version for prompting.
func (w *Worker) loadOntologyConcept(ctx context.Context, conceptID int64) (*generate.OntologyConcept, error) {
	concept, err := w.store.GetConcept(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	latest, err := w.store.LatestVersion(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	detail, err := w.store.GetVersion(ctx, latest.ID)
	if err != nil {
		return nil, err
	}

	oc := &generate.OntologyConcept{
		ConceptID: concept.ID,
		Text:      concept.Text,
	}
	for _, p := range detail.Phrases {
		oc.Phrases = append(oc.Phrases, generate.OntologyPhrase{ID: p.ID, Text: p.Text})
	}
	for _, c := range detail.Children {
		oc.Children = append(oc.Children, c.Text)
	}
	return oc, nil
}

// usageCounters folds token usage into a span counter map. A zero usage
// (backend did not report) records nothing.
func usageCounters(u llm.Usage, counters map[string]int64) map[string]int64 {
	if u == (llm.Usage{}) {
		return counters
	}
	if counters == nil {
		counters = map[string]int64{}
	}
	counters["tokensIn"] = int64(u.TokensIn)
	counters["tokensOut"] = int64(u.TokensOut)
	return counters
}

func addSpan(rec *trace.TraceRecord, name string, start time.Time, err error, counters map[string]int64) {
	span := trace.SpanRecord{
		Name:       name,
		DurationMs: time.Since(start).Milliseconds(),
		OK:         err == nil,
		Counters:   counters,
	}
	if err != nil {
		span.ErrorType = trace.ClassifyError(err)
	}
	rec.Spans = append(rec.Spans, span)
}
