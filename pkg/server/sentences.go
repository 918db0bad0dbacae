package server

import "net/http"

type createSentenceRequest struct {
	ConceptIDs []int64 `json:"conceptIds" validate:"required,min=1,dive,gt=0"`
	Text       string  `json:"text" validate:"required,min=1"`
}

func (s *Server) handleCreateSentence(w http.ResponseWriter, r *http.Request) {
	var req createSentenceRequest
	if !s.decode(w, r, &req) {
		return
	}
	sentence, err := s.store.CreateSentence(r.Context(), req.ConceptIDs, req.Text)
	if err != nil {
		s.respondStoreError(w, r, "create_sentence", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, sentence)
}

func (s *Server) handleGetSentence(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	sentence, err := s.store.GetSentence(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, "get_sentence", err)
		return
	}
	s.respondJSON(w, http.StatusOK, sentence)
}

func (s *Server) handleListSentences(w http.ResponseWriter, r *http.Request) {
	sentences, err := s.store.ListSentences(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		s.respondStoreError(w, r, "list_sentences", err)
		return
	}
	s.respondJSON(w, http.StatusOK, sentences)
}

type createChildSentenceRequest struct {
	PhraseIDs []int64 `json:"phraseIds" validate:"required,min=1,dive,gt=0"`
	Text      string  `json:"text" validate:"required,min=1"`
}

func (s *Server) handleCreateChildSentence(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	var req createChildSentenceRequest
	if !s.decode(w, r, &req) {
		return
	}
	child, err := s.store.CreateChildSentence(r.Context(), id, req.PhraseIDs, req.Text)
	if err != nil {
		s.respondStoreError(w, r, "create_child_sentence", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, child)
}

func (s *Server) handleListChildSentences(w http.ResponseWriter, r *http.Request) {
	id := s.urlID(w, r, "id")
	if id == 0 {
		return
	}
	children, err := s.store.ListChildSentences(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, "list_child_sentences", err)
		return
	}
	s.respondJSON(w, http.StatusOK, children)
}
