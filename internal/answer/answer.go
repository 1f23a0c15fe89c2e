// Package answer retrieves the chunks closest to a question and asks the
// model for a grounded answer with sources.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/docqa/internal/document"
	"github.com/dgallion1/docqa/internal/embedding"
	"github.com/dgallion1/docqa/internal/index"
	"github.com/dgallion1/docqa/internal/llm"
)

var (
	ErrIndexNotFound = errors.New("index not found, process data first")
	ErrEmptyQuestion = errors.New("question is empty")
)

const DefaultTopK = 4

// Result is the parsed model reply.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

type Answerer struct {
	embedder embedding.Embedder
	llm      llm.Completer
	topK     int
	log      *slog.Logger
}

func New(embedder embedding.Embedder, completer llm.Completer, topK int, log *slog.Logger) *Answerer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Answerer{embedder: embedder, llm: completer, topK: topK, log: log}
}

// Answer runs one question against the store's current index. When hist is
// non-nil its turns are included in the prompt and the new turn is appended.
func (a *Answerer) Answer(ctx context.Context, store index.Store, question string, hist *History) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	ix, err := store.Current(ctx)
	if errors.Is(err, index.ErrNotBuilt) {
		return nil, ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	if ix.Model != a.embedder.Model() {
		return nil, fmt.Errorf("index %s was built with embedding model %q, querying with %q", ix.ID, ix.Model, a.embedder.Model())
	}

	vecs, err := a.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one question", len(vecs))
	}

	hits, err := ix.Search(vecs[0], a.topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	chunks := make([]document.Chunk, len(hits))
	for i, h := range hits {
		chunks[i] = h.Chunk
		if looksLikeInjection(h.Chunk.Text) {
			a.log.Warn("retrieved chunk looks like a prompt injection", "source", h.Chunk.Label(), "chunk_index", h.Chunk.Index)
		}
	}

	start := time.Now()
	raw, err := a.llm.Complete(ctx, BuildPrompt(question, chunks, hist.Turns()))
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	res := ParseResponse(raw)
	hist.Add(question, res.Answer)

	a.log.Info("question answered",
		"index_id", ix.ID,
		"hits", len(hits),
		"sources", len(res.Sources),
		"llm_ms", time.Since(start).Milliseconds(),
	)
	return &res, nil
}
