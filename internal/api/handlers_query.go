package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/docqa/internal/answer"
)

type queryRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	sess.Lock()
	res, err := s.answerer.Answer(r.Context(), sess.Store, req.Question, sess.History)
	sess.Unlock()

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, answer.ErrEmptyQuestion):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, answer.ErrIndexNotFound):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		s.log.Error("query failed", "session_id", sess.ID, "error", err)
		jsonError(w, err.Error(), statusForBackendError(err))
	}
}

// statusForBackendError maps an embedding or LLM failure to 503 when the
// backend said to try again later and 502 otherwise.
func statusForBackendError(err error) int {
	var re interface{ Retryable() bool }
	if errors.As(err, &re) && re.Retryable() {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
