package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func TestOpenAIClientComplete(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Five dollars.\nSOURCES: a.txt"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "gpt-test", srv.URL, DefaultParams())
	out, err := c.Complete(context.Background(), "question?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Five dollars.\nSOURCES: a.txt" {
		t.Errorf("unexpected output %q", out)
	}
	if got.Model != "gpt-test" || got.Temperature != 0.6 || got.MaxTokens != 500 {
		t.Errorf("unexpected request params %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "question?" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestAnthropicClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "ak" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic headers")
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"Hello "},{"type":"text","text":"there"}]}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient("ak", "claude-test", srv.URL, Params{})
	out, err := c.Complete(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hello there" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestClientsClassifyRetryable(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"error":{"type":"x","message":"nope"}}`))
		}))

		clients := []Completer{
			NewOpenAIClient("k", "m", srv.URL, Params{}),
			NewAnthropicClient("k", "m", srv.URL, Params{}),
		}
		for _, c := range clients {
			_, err := c.Complete(context.Background(), "p")
			if err == nil {
				t.Errorf("status %d: expected error", tt.status)
				continue
			}
			var re *RetryableError
			if errors.As(err, &re) != tt.retryable {
				t.Errorf("status %d: retryable=%v, got err %v", tt.status, tt.retryable, err)
			}
		}
		srv.Close()
	}
}

func TestOpenAIClientUnparsedErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient("k", "m", srv.URL, Params{}).Complete(context.Background(), "p")
	var re *RetryableError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetryableError, got %v", err)
	}
	if re.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", re.StatusCode)
	}
}

type fakeCompleter struct {
	out string
	err error
}

func (f fakeCompleter) Complete(context.Context, string) (string, error) { return f.out, f.err }
func (f fakeCompleter) Model() string                                   { return "fake" }

func TestInstrumentedRecords(t *testing.T) {
	stats := NewLLMStats(time.Hour)

	ok := WithStats(fakeCompleter{out: "yes"}, stats)
	if out, err := ok.Complete(context.Background(), "p"); err != nil || out != "yes" {
		t.Fatalf("unexpected result %q, %v", out, err)
	}
	bad := WithStats(fakeCompleter{err: errors.New("boom")}, stats)
	if _, err := bad.Complete(context.Background(), "p"); err == nil {
		t.Fatal("expected error")
	}

	snap := stats.Snapshot()
	if snap.Count != 1 || snap.Errors != 1 {
		t.Errorf("expected count=1 errors=1, got %+v", snap)
	}
	if ok.Model() != "fake" || ok.Stats() != stats {
		t.Errorf("wrapper should expose model and stats")
	}
}
