package server

import (
	"net/http"

	"lexigraph/pkg/store"
)

type generateRequest struct {
	SubjectConceptID int64  `json:"subjectConceptId" validate:"required,gt=0"`
	Kind             string `json:"kind" validate:"required,oneof=plan_subconcepts append_phrases phrase_note crossref_sentences"`
	PhraseID         int64  `json:"phraseId" validate:"omitempty,gt=0"`
	SentenceID       int64  `json:"sentenceId" validate:"omitempty,gt=0"`
	Modifier         string `json:"modifier" validate:"omitempty,max=500"`
}

type generateResponse struct {
	Task    *store.Task `json:"task"`
	Deduped bool        `json:"deduped"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !s.decode(w, r, &req) {
		return
	}

	kind := store.TaskKind(req.Kind)
	switch kind {
	case store.KindPhraseNote:
		if req.PhraseID == 0 {
			s.respondError(w, http.StatusBadRequest, "phraseId is required for phrase_note")
			return
		}
	case store.KindCrossRefSentences:
		if req.SentenceID == 0 {
			s.respondError(w, http.StatusBadRequest, "sentenceId is required for crossref_sentences")
			return
		}
	}

	ident := store.TaskIdentifier{
		ConceptID:  req.SubjectConceptID,
		PhraseID:   req.PhraseID,
		SentenceID: req.SentenceID,
	}
	task, deduped, err := s.store.Enqueue(r.Context(), req.SubjectConceptID, kind, ident, req.Modifier)
	if err != nil {
		s.respondStoreError(w, r, "enqueue", err)
		return
	}

	status := http.StatusAccepted
	if deduped {
		status = http.StatusOK
	}
	s.respondJSON(w, status, generateResponse{Task: task, Deduped: deduped})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, "get_task", err)
		return
	}
	s.respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	subject := int64(queryInt(r, "concept_id", 0))
	tasks, err := s.store.ListTasks(r.Context(), subject, queryInt(r, "limit", 50))
	if err != nil {
		s.respondStoreError(w, r, "list_tasks", err)
		return
	}
	s.respondJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	subject := int64(queryInt(r, "concept_id", 0))
	if subject == 0 {
		s.respondError(w, http.StatusBadRequest, "concept_id is required")
		return
	}
	artifacts, err := s.store.ListArtifacts(r.Context(), subject, queryInt(r, "limit", 50))
	if err != nil {
		s.respondStoreError(w, r, "list_artifacts", err)
		return
	}
	s.respondJSON(w, http.StatusOK, artifacts)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	artifact, err := s.store.GetArtifact(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, "get_artifact", err)
		return
	}
	s.respondJSON(w, http.StatusOK, artifact)
}

func (s *Server) handleDeleteArtifact(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	if err := s.store.DeleteArtifact(r.Context(), id); err != nil {
		s.respondStoreError(w, r, "delete_artifact", err)
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleApplyArtifact(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	result, err := s.engine.ApplyPlan(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, "apply_artifact", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}
