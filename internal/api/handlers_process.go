package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docqa/internal/collector"
	"github.com/dgallion1/docqa/internal/pipeline"
)

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	in, err := s.readProcessInput(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, fmt.Sprintf("request exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess.Lock()
	run, err := s.pipeline.Process(r.Context(), sess.Store, in)
	sess.SetLastRun(run)
	sess.Unlock()

	snap := run.Snapshot()
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, snap)
	case errors.Is(err, pipeline.ErrNoData), errors.Is(err, pipeline.ErrNoChunks):
		writeJSON(w, http.StatusUnprocessableEntity, snap)
	default:
		s.log.Error("process failed", "session_id", sess.ID, "run_id", snap.ID, "error", err)
		writeJSON(w, statusForBackendError(err), snap)
	}
}

// readProcessInput accepts a multipart form with repeatable "url" and
// "files" fields, or a plain form carrying only URLs.
func (s *Server) readProcessInput(r *http.Request) (collector.Input, error) {
	var in collector.Input

	err := r.ParseMultipartForm(32 << 20)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		return in, fmt.Errorf("invalid form: %w", err)
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	for _, u := range r.Form["url"] {
		if u = strings.TrimSpace(u); u != "" {
			in.URLs = append(in.URLs, u)
		}
	}
	if len(in.URLs) > s.cfg.MaxURLs {
		return in, fmt.Errorf("at most %d urls are accepted, got %d", s.cfg.MaxURLs, len(in.URLs))
	}

	if r.MultipartForm == nil {
		return in, nil
	}
	var total int64
	for _, fh := range r.MultipartForm.File["files"] {
		up, err := s.readUpload(fh)
		if err != nil {
			return in, err
		}
		total += int64(len(up.Data))
		if total > s.cfg.MaxUploadBytes {
			return in, &http.MaxBytesError{Limit: s.cfg.MaxUploadBytes}
		}
		in.Files = append(in.Files, up)
	}
	return in, nil
}

func (s *Server) readUpload(fh *multipart.FileHeader) (collector.Upload, error) {
	filename := sanitizeFilename(fh.Filename)
	f, err := fh.Open()
	if err != nil {
		return collector.Upload{}, fmt.Errorf("open %s: %w", filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return collector.Upload{}, fmt.Errorf("read %s: %w", filename, err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return collector.Upload{}, &http.MaxBytesError{Limit: s.cfg.MaxUploadBytes}
	}
	return collector.Upload{Name: filename, Data: data}, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
