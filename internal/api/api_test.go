package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docqa/internal/answer"
	"github.com/dgallion1/docqa/internal/chunker"
	"github.com/dgallion1/docqa/internal/collector"
	"github.com/dgallion1/docqa/internal/config"
	"github.com/dgallion1/docqa/internal/embedding"
	"github.com/dgallion1/docqa/internal/index"
	"github.com/dgallion1/docqa/internal/llm"
	"github.com/dgallion1/docqa/internal/parser"
	"github.com/dgallion1/docqa/internal/pipeline"
	"github.com/dgallion1/docqa/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func (f *fakeCompleter) Model() string { return "fake-model" }

func newTestServer(t *testing.T, cfg config.Config, completer llm.Completer) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	emb := embedding.NewHash(64)

	c := collector.New(collector.NewDirectFetcher(5*time.Second, 1<<20, false), parser.DefaultRegistry(false), 5*time.Second, log)
	p := pipeline.New(c, chunker.DefaultConfig(), index.NewIndexer(emb, log), log)
	instrumented := llm.WithStats(completer, llm.NewLLMStats(time.Hour))
	a := answer.New(emb, instrumented, 4, log)
	sessions := session.NewStore(session.MemoryStores(), cfg.HistoryTurns, time.Hour, log)

	return NewServer(sessions, p, a, instrumented, log, cfg)
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["session_id"])
	return body["session_id"]
}

type upload struct{ name, content string }

func processRequest(t *testing.T, sessionID string, urls []string, files []upload) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, u := range urls {
		require.NoError(t, mw.WriteField("url", u))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+sessionID+"/process", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newQueryRequest(sessionID, question string) *http.Request {
	body, _ := json.Marshal(map[string]string{"question": question})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+sessionID+"/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func getInfo(t *testing.T, h http.Handler, id string) session.Info {
	t.Helper()
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info session.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	return info
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, config.Defaults(), &fakeCompleter{})
	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProcessThenQuery(t *testing.T) {
	fc := &fakeCompleter{reply: "Foxes are quick.\nSOURCES: fox.txt"}
	srv := newTestServer(t, config.Defaults(), fc)
	id := createSession(t, srv)

	rec := do(t, srv, newQueryRequest(id, "How fast is the fox?"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "index not found, process data first")

	rec = do(t, srv, processRequest(t, id, nil, []upload{
		{"fox.txt", "The quick brown fox jumps over the lazy dog.\n\nFoxes are fast."},
		{"table.csv", "a,b\n1,2"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var run pipeline.RunSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, pipeline.StageCompleted, run.Stage)
	assert.Equal(t, 1, run.Documents)
	require.Len(t, run.Report.Items, 2)
	assert.Equal(t, collector.StatusSkipped, run.Report.Items[1].Status)

	rec = do(t, srv, newQueryRequest(id, "How fast is the fox?"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res answer.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "Foxes are quick.", res.Answer)
	assert.Equal(t, []string{"fox.txt"}, res.Sources)
	require.Len(t, fc.prompts, 1)
	assert.Contains(t, fc.prompts[0], "The quick brown fox")

	info := getInfo(t, srv, id)
	assert.Equal(t, 1, info.Turns)
	require.NotNil(t, info.LastRun)
	assert.Equal(t, run.ID, info.LastRun.ID)

	rec = do(t, srv, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id+"/history", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, getInfo(t, srv, id).Turns)

	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/api/stats/llm", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Model string            `json:"model"`
		Stats llm.StatsSnapshot `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "fake-model", stats.Model)
	assert.Equal(t, 1, stats.Stats.Count)
}

func TestProcessFromURL(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, "<html><head><title>Otters</title></head><body><p>Otters hold hands while sleeping.</p><p>They live in rivers.</p></body></html>")
	}))
	defer site.Close()

	srv := newTestServer(t, config.Defaults(), &fakeCompleter{reply: "They hold hands.\nSOURCES: " + site.URL})
	id := createSession(t, srv)

	rec := do(t, srv, processRequest(t, id, []string{site.URL, "  "}, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var run pipeline.RunSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, 1, run.Documents)
	require.Len(t, run.Report.Items, 1)
	assert.Equal(t, site.URL, run.Report.Items[0].Origin.Name)
}

func TestProcessNoData(t *testing.T) {
	srv := newTestServer(t, config.Defaults(), &fakeCompleter{})
	id := createSession(t, srv)

	rec := do(t, srv, processRequest(t, id, nil, []upload{{"data.csv", "x"}}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var run pipeline.RunSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, pipeline.StageFailed, run.Stage)
	assert.Equal(t, pipeline.StageCollecting, run.HaltedAt)
	assert.Contains(t, run.Error, "no data was loaded")
}

func TestProcessNoChunks(t *testing.T) {
	srv := newTestServer(t, config.Defaults(), &fakeCompleter{})
	id := createSession(t, srv)

	rec := do(t, srv, processRequest(t, id, nil, []upload{{"blank.txt", " \n\n "}}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var run pipeline.RunSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, pipeline.StageChunking, run.HaltedAt)
}

func TestProcessTooManyURLs(t *testing.T) {
	srv := newTestServer(t, config.Defaults(), &fakeCompleter{})
	id := createSession(t, srv)

	urls := []string{"http://a.example", "http://b.example", "http://c.example", "http://d.example"}
	rec := do(t, srv, processRequest(t, id, urls, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at most 3 urls")
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		question string
		want     int
	}{
		{"blank question", nil, "   ", http.StatusBadRequest},
		{"retryable backend", &llm.RetryableError{Provider: "openai", StatusCode: 429, Message: "slow down"}, "q", http.StatusServiceUnavailable},
		{"permanent backend", io.ErrUnexpectedEOF, "q", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, config.Defaults(), &fakeCompleter{reply: "ok", err: tt.err})
			id := createSession(t, srv)
			rec := do(t, srv, processRequest(t, id, nil, []upload{{"a.txt", "alpha beta"}}))
			require.Equal(t, http.StatusOK, rec.Code)

			rec = do(t, srv, newQueryRequest(id, tt.question))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestQueryBadJSON(t *testing.T) {
	srv := newTestServer(t, config.Defaults(), &fakeCompleter{})
	id := createSession(t, srv)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/query", strings.NewReader("{"))
	rec := do(t, srv, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownAndDeletedSession(t *testing.T) {
	srv := newTestServer(t, config.Defaults(), &fakeCompleter{})

	rec := do(t, srv, newQueryRequest("nope", "q"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	id := createSession(t, srv)
	rec = do(t, srv, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, newQueryRequest(id, "q"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, srv, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuth(t *testing.T) {
	cfg := config.Defaults()
	cfg.APIKey = "secret"
	srv := newTestServer(t, cfg, &fakeCompleter{})

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, do(t, srv, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusCreated, do(t, srv, req).Code)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\doc.txt`: "doc.txt",
		"":                    "unnamed",
		"a..b.txt":            "a_b.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
}
