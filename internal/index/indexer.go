package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docqa/internal/document"
	"github.com/dgallion1/docqa/internal/embedding"
	"github.com/oklog/ulid/v2"
)

// Indexer embeds chunks and assembles them into an Index.
type Indexer struct {
	embedder embedding.Embedder
	log      *slog.Logger
}

func NewIndexer(embedder embedding.Embedder, log *slog.Logger) *Indexer {
	return &Indexer{embedder: embedder, log: log}
}

// Build embeds every chunk in order. The returned index is not yet visible
// to readers; hand it to a Store to publish it.
func (b *Indexer) Build(ctx context.Context, chunks []document.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrNoEntries
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	start := time.Now()
	vecs, err := b.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	entries := make([]Entry, len(chunks))
	for i := range chunks {
		entries[i] = Entry{Chunk: chunks[i], Vector: vecs[i]}
	}

	ix, err := New(ulid.Make().String(), b.embedder.Model(), entries, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("assemble index: %w", err)
	}

	b.log.Info("index built",
		"index_id", ix.ID,
		"model", ix.Model,
		"entries", ix.Len(),
		"dim", ix.Dim,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ix, nil
}
