// Package app builds the docqa components from configuration. Both the
// server and the CLI wire themselves through it.
package app

import (
	"fmt"
	"log/slog"
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
)

const ollamaWorkers = 4

// App holds the long-lived components.
type App struct {
	Embedder embedding.Embedder
	LLM      *llm.Instrumented
	Pipeline *pipeline.Pipeline
	Answerer *answer.Answerer

	closers []func()
}

// New constructs every component named by cfg. cfg must already be valid.
func New(cfg config.Config, log *slog.Logger) (*App, error) {
	emb, err := NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Embedder: emb}

	completer, closeLLM, err := newCompleter(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeLLM)
	a.LLM = llm.WithStats(completer, llm.NewLLMStats(time.Hour))

	var fetch collector.FetchStrategy
	switch cfg.FetchStrategy {
	case "api":
		fetch = collector.NewAPIFetcher(cfg.UnstructuredURL, cfg.UnstructuredAPIKey, cfg.FetchTimeout, cfg.MaxFetchBytes)
	default:
		fetch = collector.NewDirectFetcher(cfg.FetchTimeout, cfg.MaxFetchBytes, cfg.PDFFallbackPdftotext)
	}
	col := collector.New(fetch, parser.DefaultRegistry(cfg.PDFFallbackPdftotext), cfg.FetchTimeout, log.With("component", "collector"))

	chunkCfg := chunker.Config{ChunkSize: cfg.ChunkSize, Separators: cfg.ChunkSeparators}
	indexer := index.NewIndexer(emb, log.With("component", "indexer"))
	a.Pipeline = pipeline.New(col, chunkCfg, indexer, log.With("component", "pipeline"))
	a.Answerer = answer.New(emb, a.LLM, cfg.TopK, log.With("component", "answer"))

	log.Info("components ready",
		"embedding_model", emb.Model(),
		"llm_model", a.LLM.Model(),
		"fetch_strategy", fetch.Name(),
		"index_mode", cfg.IndexMode,
	)
	return a, nil
}

// NewEmbedder returns the embedder selected by cfg.EmbeddingProvider.
func NewEmbedder(cfg config.Config) (embedding.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		return embedding.NewOpenAI(embedding.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.EmbeddingModel,
			BatchSize: cfg.EmbeddingBatchSize,
			RPS:       cfg.EmbeddingRPS,
		})
	case "ollama":
		return embedding.NewOllama(cfg.OllamaURL, cfg.EmbeddingModel, ollamaWorkers), nil
	case "hash":
		return embedding.NewHash(cfg.HashDimensions), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
}

func newCompleter(cfg config.Config) (llm.Completer, func(), error) {
	params := llm.Params{Temperature: cfg.LLMTemperature, MaxTokens: cfg.LLMMaxTokens}
	switch cfg.LLMProvider {
	case "openai":
		c := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.OpenAIBaseURL, params)
		return c, c.Close, nil
	case "anthropic":
		c := llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, "", params)
		return c, c.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
}

// NewSessions returns a session registry whose index placement follows
// cfg.IndexMode.
func NewSessions(cfg config.Config, log *slog.Logger) *session.Store {
	factory := session.MemoryStores()
	if cfg.IndexMode == "disk" {
		factory = session.SharedStore(index.NewDiskStore(cfg.IndexDir, log.With("component", "index")))
	}
	return session.NewStore(factory, cfg.HistoryTurns, cfg.SessionTTL, log.With("component", "session"))
}

// Close releases HTTP clients held by the components.
func (a *App) Close() {
	for _, c := range a.closers {
		c()
	}
}
