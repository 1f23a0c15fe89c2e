// Package pipeline runs collection, chunking and indexing in order and
// halts as soon as a stage produces nothing to hand on.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docqa/internal/chunker"
	"github.com/dgallion1/docqa/internal/collector"
	"github.com/dgallion1/docqa/internal/index"
)

var (
	ErrNoData   = errors.New("no data was loaded from the provided URLs or files")
	ErrNoChunks = errors.New("no chunks were created after splitting; the data contains no usable text")
)

type Pipeline struct {
	collector *collector.Collector
	chunkCfg  chunker.Config
	indexer   *index.Indexer
	log       *slog.Logger
}

func New(c *collector.Collector, chunkCfg chunker.Config, indexer *index.Indexer, log *slog.Logger) *Pipeline {
	return &Pipeline{collector: c, chunkCfg: chunkCfg, indexer: indexer, log: log}
}

// Process builds a new index from in and publishes it to store. On
// ErrNoData or ErrNoChunks the store is left untouched. The returned run is
// never nil.
func (p *Pipeline) Process(ctx context.Context, store index.Store, in collector.Input) (*Run, error) {
	run := newRun()
	log := p.log.With("run_id", run.ID())
	start := time.Now()

	// Stage 1: Collect
	run.setStage(StageCollecting)
	docs, report := p.collector.Collect(ctx, in)
	run.setCollected(len(docs), report)
	if len(docs) == 0 {
		log.Warn("process halted", "stage", StageCollecting, "reason", ErrNoData, "failed_items", len(report.Errors()))
		run.fail(ErrNoData)
		return run, ErrNoData
	}
	if err := ctx.Err(); err != nil {
		run.fail(err)
		return run, err
	}

	// Stage 2: Chunk
	run.setStage(StageChunking)
	chunks := chunker.Split(docs, p.chunkCfg)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	run.setChunked(len(chunks), chunker.EstimateChunkTokens(texts))
	if len(chunks) == 0 {
		log.Warn("process halted", "stage", StageChunking, "reason", ErrNoChunks, "documents", len(docs))
		run.fail(ErrNoChunks)
		return run, ErrNoChunks
	}
	log.Info("documents chunked", "documents", len(docs), "chunks", len(chunks))

	// Stage 3: Index
	run.setStage(StageIndexing)
	ix, err := p.indexer.Build(ctx, chunks)
	if err != nil {
		log.Error("index build failed", "error", err)
		err = fmt.Errorf("build index: %w", err)
		run.fail(err)
		return run, err
	}
	if err := store.Replace(ctx, ix); err != nil {
		log.Error("index publish failed", "error", err)
		err = fmt.Errorf("publish index: %w", err)
		run.fail(err)
		return run, err
	}

	run.complete(ix.ID, ix.ContentHash)
	log.Info("process complete",
		"index_id", ix.ID,
		"documents", len(docs),
		"chunks", len(chunks),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return run, nil
}
