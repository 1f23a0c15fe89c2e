package api

import (
	"errors"
	"net/http"

	"github.com/dgallion1/docqa/internal/session"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create()
	if err != nil {
		s.log.Error("create session failed", "error", err)
		jsonError(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sess.ID})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, "sessionID")); err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	sess.History.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// lookupSession resolves the {sessionID} route parameter, writing a 404 when
// it is unknown.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if errors.Is(err, session.ErrNotFound) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	sess.Touch()
	return sess, true
}
