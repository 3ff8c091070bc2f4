package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskhub/pkg/httputil"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

// registerNoteRoutes registers project note routes
func (s *Server) registerNoteRoutes(r *mux.Router) {
	s.gate(r, http.MethodGet, "/{projectID}/notes", rbac.ActionViewNotes, s.listNotes)
	s.gate(r, http.MethodPost, "/{projectID}/notes", rbac.ActionAddNotes, s.createNote)
	s.gate(r, http.MethodGet, "/{projectID}/notes/{noteID}", rbac.ActionViewNotes, s.getNote)
	s.gate(r, http.MethodPut, "/{projectID}/notes/{noteID}", rbac.ActionUpdateNotes, s.updateNote)
	s.gate(r, http.MethodDelete, "/{projectID}/notes/{noteID}", rbac.ActionDeleteNotes, s.deleteNote)
}

type noteRequest struct {
	Content string `json:"content"`
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	list, err := s.notes.ListNotes(r.Context(), projectID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Notes fetched successfully", list)
}

func (s *Server) getNote(w http.ResponseWriter, r *http.Request) {
	noteID, err := httputil.ParsePathInt64(r, "noteID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	note, err := s.notes.GetNote(r.Context(), projectID(r), noteID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Note fetched successfully", note)
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validator.Required("content", req.Content, "Content is required"); err != nil {
		s.fail(w, r, err)
		return
	}

	note, err := s.notes.CreateNote(r.Context(), projectID(r), s.caller(r).UserID, strings.TrimSpace(req.Content))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, "Note created successfully", note)
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	noteID, err := httputil.ParsePathInt64(r, "noteID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req noteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validator.Required("content", req.Content, "Content is required"); err != nil {
		s.fail(w, r, err)
		return
	}

	note, err := s.notes.UpdateNote(r.Context(), projectID(r), noteID, strings.TrimSpace(req.Content))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Note updated successfully", note)
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	noteID, err := httputil.ParsePathInt64(r, "noteID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.notes.DeleteNote(r.Context(), projectID(r), noteID); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteOK(w, "Note deleted successfully", nil)
}
