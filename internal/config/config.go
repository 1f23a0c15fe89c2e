package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	// Auth
	APIKey string `yaml:"api_key"`

	// Embeddings
	EmbeddingProvider  string  `yaml:"embedding_provider"`
	EmbeddingModel     string  `yaml:"embedding_model"`
	EmbeddingBatchSize int     `yaml:"embedding_batch_size"`
	EmbeddingRPS       float64 `yaml:"embedding_rps"`
	HashDimensions     int     `yaml:"hash_dimensions"`
	OllamaURL          string  `yaml:"ollama_url"`

	// Completion
	LLMProvider    string  `yaml:"llm_provider"`
	LLMModel       string  `yaml:"llm_model"`
	LLMTemperature float64 `yaml:"llm_temperature"`
	LLMMaxTokens   int     `yaml:"llm_max_tokens"`

	// Provider credentials
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`

	// Collection
	FetchStrategy      string        `yaml:"fetch_strategy"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout"`
	MaxFetchBytes      int64         `yaml:"max_fetch_bytes"`
	UnstructuredURL    string        `yaml:"unstructured_api_url"`
	UnstructuredAPIKey string        `yaml:"unstructured_api_key"`
	MaxURLs            int           `yaml:"max_urls"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Chunking
	ChunkSize       int      `yaml:"chunk_size"`
	ChunkSeparators []string `yaml:"chunk_separators"`

	// Retrieval
	TopK         int `yaml:"top_k"`
	HistoryTurns int `yaml:"history_turns"`

	// Index placement
	IndexMode string `yaml:"index_mode"`
	IndexDir  string `yaml:"index_dir"`

	// Session state
	SessionTTL time.Duration `yaml:"session_ttl"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`
}

// Defaults returns the configuration used when neither a config file nor
// environment variables override a setting.
func Defaults() Config {
	return Config{
		Port: "8090",

		EmbeddingProvider:  "openai",
		EmbeddingBatchSize: 64,
		HashDimensions:     256,
		OllamaURL:          "http://localhost:11434",

		LLMProvider:    "openai",
		LLMModel:       "gpt-4o-mini",
		LLMTemperature: 0.6,
		LLMMaxTokens:   500,

		OpenAIBaseURL:  "https://api.openai.com/v1",
		AnthropicModel: "claude-sonnet-4-5-20250929",

		FetchStrategy:   "direct",
		FetchTimeout:    30 * time.Second,
		MaxFetchBytes:   20 << 20,
		UnstructuredURL: "https://api.unstructured.io/general/v0/general",
		MaxURLs:         3,

		MaxUploadBytes: 52428800, // 50MB

		ChunkSize:       1000,
		ChunkSeparators: []string{"\n\n", "\n", ".", ","},

		TopK:         4,
		HistoryTurns: 5,

		IndexMode: "memory",
		IndexDir:  "docqa_index",

		SessionTTL: 1 * time.Hour,

		PDFFallbackPdftotext: true,
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// DOCQA_CONFIG, and then environment variables, in that order of precedence.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("DOCQA_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("DOCQA_API_KEY", cfg.APIKey)

	cfg.EmbeddingProvider = envOr("EMBEDDING_PROVIDER", cfg.EmbeddingProvider)
	cfg.EmbeddingModel = envOr("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingBatchSize = envInt("EMBEDDING_BATCH_SIZE", cfg.EmbeddingBatchSize)
	cfg.EmbeddingRPS = envFloat("EMBEDDING_RPS", cfg.EmbeddingRPS)
	cfg.HashDimensions = envInt("HASH_DIMENSIONS", cfg.HashDimensions)
	cfg.OllamaURL = envOr("OLLAMA_URL", cfg.OllamaURL)

	cfg.LLMProvider = envOr("LLM_PROVIDER", cfg.LLMProvider)
	cfg.LLMModel = envOr("LLM_MODEL", cfg.LLMModel)
	cfg.LLMTemperature = envFloat("LLM_TEMPERATURE", cfg.LLMTemperature)
	cfg.LLMMaxTokens = envInt("LLM_MAX_TOKENS", cfg.LLMMaxTokens)

	cfg.OpenAIAPIKey = envOr("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = envOr("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.AnthropicAPIKey = envOr("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AnthropicModel = envOr("ANTHROPIC_MODEL", cfg.AnthropicModel)

	cfg.FetchStrategy = envOr("FETCH_STRATEGY", cfg.FetchStrategy)
	cfg.FetchTimeout = envDuration("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.MaxFetchBytes = envInt64("MAX_FETCH_BYTES", cfg.MaxFetchBytes)
	cfg.UnstructuredURL = envOr("UNSTRUCTURED_API_URL", cfg.UnstructuredURL)
	cfg.UnstructuredAPIKey = envOr("UNSTRUCTURED_API_KEY", cfg.UnstructuredAPIKey)
	cfg.MaxURLs = envInt("MAX_URLS", cfg.MaxURLs)

	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)

	cfg.ChunkSize = envInt("CHUNK_SIZE", cfg.ChunkSize)

	cfg.TopK = envInt("TOP_K", cfg.TopK)
	cfg.HistoryTurns = envInt("HISTORY_TURNS", cfg.HistoryTurns)

	cfg.IndexMode = envOr("INDEX_MODE", cfg.IndexMode)
	cfg.IndexDir = envOr("INDEX_DIR", cfg.IndexDir)

	cfg.SessionTTL = envDuration("SESSION_TTL", cfg.SessionTTL)

	cfg.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext)

	cfg.applyDefaults()
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// defaultEmbeddingModels is used when EMBEDDING_MODEL is unset. The hash
// provider names its own model from HashDimensions.
var defaultEmbeddingModels = map[string]string{
	"openai": "text-embedding-3-small",
	"ollama": "nomic-embed-text",
}

func (c *Config) applyDefaults() {
	d := Defaults()
	if c.EmbeddingBatchSize <= 0 {
		c.EmbeddingBatchSize = d.EmbeddingBatchSize
	}
	if c.HashDimensions <= 0 {
		c.HashDimensions = d.HashDimensions
	}
	if c.LLMMaxTokens <= 0 {
		c.LLMMaxTokens = d.LLMMaxTokens
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.MaxFetchBytes <= 0 {
		c.MaxFetchBytes = d.MaxFetchBytes
	}
	if c.MaxURLs <= 0 {
		c.MaxURLs = d.MaxURLs
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if len(c.ChunkSeparators) == 0 {
		c.ChunkSeparators = d.ChunkSeparators
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.HistoryTurns < 0 {
		c.HistoryTurns = 0
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = d.SessionTTL
	}
	c.EmbeddingProvider = strings.ToLower(c.EmbeddingProvider)
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = defaultEmbeddingModels[c.EmbeddingProvider]
	}
	c.LLMProvider = strings.ToLower(c.LLMProvider)
	c.FetchStrategy = strings.ToLower(c.FetchStrategy)
	c.IndexMode = strings.ToLower(c.IndexMode)
}

func (c Config) Validate() error {
	switch c.EmbeddingProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai embedding provider")
		}
	case "ollama", "hash":
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}

	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai llm provider")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic llm provider")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.FetchStrategy {
	case "direct":
	case "api":
		if c.UnstructuredAPIKey == "" {
			return fmt.Errorf("UNSTRUCTURED_API_KEY is required when FETCH_STRATEGY=api")
		}
	default:
		return fmt.Errorf("unknown FETCH_STRATEGY %q", c.FetchStrategy)
	}

	switch c.IndexMode {
	case "memory":
	case "disk":
		if c.IndexDir == "" {
			return fmt.Errorf("INDEX_DIR is required when INDEX_MODE=disk")
		}
	default:
		return fmt.Errorf("unknown INDEX_MODE %q", c.IndexMode)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
