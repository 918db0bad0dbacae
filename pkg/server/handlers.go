package server

import (
	"net/http"

	"lexigraph/pkg/treefile"
)

type createConceptRequest struct {
	Text string `json:"text" validate:"required,min=1,max=200"`
}

func (s *Server) handleCreateConcept(w http.ResponseWriter, r *http.Request) {
	var req createConceptRequest
	if !s.decode(w, r, &req) {
		return
	}
	concept, version, err := s.store.CreateConcept(r.Context(), req.Text)
	if err != nil {
		s.respondStoreError(w, r, "create_concept", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]int64{
		"conceptId": concept.ID,
		"versionId": version.ID,
	})
}

func (s *Server) handleListConcepts(w http.ResponseWriter, r *http.Request) {
	concepts, err := s.store.ListConcepts(r.Context())
	if err != nil {
		s.respondStoreError(w, r, "list_concepts", err)
		return
	}
	s.respondJSON(w, http.StatusOK, concepts)
}

func (s *Server) handleNextVersion(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	version, err := s.store.NextVersion(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, "next_version", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, version)
}

func (s *Server) handleDeleteConcept(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	if err := s.store.DeleteConcept(r.Context(), id); err != nil {
		s.respondStoreError(w, r, "delete_concept", err)
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	detail, err := s.store.GetVersion(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, "get_version", err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	if err := s.store.DeleteVersion(r.Context(), id); err != nil {
		s.respondStoreError(w, r, "delete_version", err)
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

type phraseRequest struct {
	Text string `json:"text" validate:"required,min=1,max=500"`
	Link string `json:"link" validate:"omitempty,max=2000"`
}

func (s *Server) handleAddPhrase(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	var req phraseRequest
	if !s.decode(w, r, &req) {
		return
	}
	phrase, err := s.store.AddPhrase(r.Context(), id, req.Text, req.Link)
	if err != nil {
		s.respondStoreError(w, r, "add_phrase", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, phrase)
}

func (s *Server) handleUpdatePhrase(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	var req phraseRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.UpdatePhrase(r.Context(), id, req.Text, req.Link); err != nil {
		s.respondStoreError(w, r, "update_phrase", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDeletePhrase(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	if err := s.store.DeletePhrase(r.Context(), id); err != nil {
		s.respondStoreError(w, r, "delete_phrase", err)
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

type movePhraseRequest struct {
	ToVersionID int64 `json:"toVersionId" validate:"required,gt=0"`
}

func (s *Server) handleMovePhrase(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	var req movePhraseRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.MovePhrase(r.Context(), id, req.ToVersionID); err != nil {
		s.respondStoreError(w, r, "move_phrase", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type addChildRequest struct {
	ChildConceptID int64 `json:"childConceptId" validate:"required,gt=0"`
}

func (s *Server) handleAddChild(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	var req addChildRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.AddEdge(r.Context(), id, req.ChildConceptID); err != nil {
		s.respondStoreError(w, r, "add_child", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRemoveChild(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	childID := s.urlID(w, r, "childID")
	if childID == 0 {
		return
	}
	if err := s.store.RemoveEdge(r.Context(), id, childID); err != nil {
		s.respondStoreError(w, r, "remove_child", err)
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListRoots(w http.ResponseWriter, r *http.Request) {
	roots, err := s.store.ListRoots(r.Context())
	if err != nil {
		s.respondStoreError(w, r, "list_roots", err)
		return
	}
	s.respondJSON(w, http.StatusOK, roots)
}

func (s *Server) handleExportTree(w http.ResponseWriter, r *http.Request) {
	roots, err := s.store.ListRoots(r.Context())
	if err != nil {
		s.respondStoreError(w, r, "export_tree", err)
		return
	}
	export, err := treefile.Build(r.Context(), roots, s.store)
	if err != nil {
		s.respondStoreError(w, r, "export_tree", err)
		return
	}
	s.respondJSON(w, http.StatusOK, export)
}

func (s *Server) handleListPhraseNotes(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	notes, err := s.store.ListPhraseNotes(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, "list_phrase_notes", err)
		return
	}
	s.respondJSON(w, http.StatusOK, notes)
}
