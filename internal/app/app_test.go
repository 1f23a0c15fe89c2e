package app

import (
	"io"
	"log/slog"
	"testing"

	"github.com/dgallion1/docqa/internal/config"
	"github.com/dgallion1/docqa/internal/embedding"
	"github.com/dgallion1/docqa/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offlineConfig() config.Config {
	cfg := config.Defaults()
	cfg.EmbeddingProvider = "hash"
	cfg.HashDimensions = 16
	cfg.LLMProvider = "anthropic"
	cfg.AnthropicAPIKey = "test-key"
	return cfg
}

func TestNewEmbedder(t *testing.T) {
	cfg := offlineConfig()

	emb, err := NewEmbedder(cfg)
	require.NoError(t, err)
	assert.IsType(t, &embedding.Hash{}, emb)
	assert.Equal(t, "hash-16", emb.Model())

	cfg.EmbeddingProvider = "ollama"
	cfg.EmbeddingModel = "nomic-embed-text"
	emb, err = NewEmbedder(cfg)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", emb.Model())

	cfg.EmbeddingProvider = "word2vec"
	_, err = NewEmbedder(cfg)
	assert.Error(t, err)
}

func TestNewEmbedderOllamaDefaultModel(t *testing.T) {
	t.Setenv("DOCQA_CONFIG", "")
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("EMBEDDING_MODEL", "")
	cfg, err := config.Load()
	require.NoError(t, err)

	emb, err := NewEmbedder(cfg)
	require.NoError(t, err)
	assert.Equal(t, embedding.DefaultOllamaModel, emb.Model())
}

func TestNew(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(offlineConfig(), log)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Answerer)
	assert.Equal(t, offlineConfig().AnthropicModel, a.LLM.Model())
}

func TestNewSessions(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := offlineConfig()
	s, err := NewSessions(cfg, log).Create()
	require.NoError(t, err)
	assert.IsType(t, &index.MemoryStore{}, s.Store)

	cfg.IndexMode = "disk"
	cfg.IndexDir = t.TempDir()
	sessions := NewSessions(cfg, log)
	a, err := sessions.Create()
	require.NoError(t, err)
	b, err := sessions.Create()
	require.NoError(t, err)
	assert.IsType(t, &index.DiskStore{}, a.Store)
	assert.Same(t, a.Store, b.Store)
}
