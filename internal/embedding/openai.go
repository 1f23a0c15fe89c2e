package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "text-embedding-3-small"
	defaultBatchSize     = 64
)

// OpenAIConfig holds settings for the OpenAI embeddings endpoint.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // also works for OpenAI-compatible gateways
	Model     string
	BatchSize int           // inputs per request
	RPS       float64       // requests per second, 0 for unlimited
	Timeout   time.Duration // per request
}

// OpenAI calls the /embeddings endpoint in batches.
type OpenAI struct {
	client    *openai.Client
	model     string
	batchSize int
	limiter   *rate.Limiter
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embeddings: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientCfg.HTTPClient = httpClient

	return &OpenAI{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		limiter:   limiter,
	}, nil
}

func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.batchSize {
		end := min(start+o.batchSize, len(texts))
		vecs, err := o.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (o *OpenAI) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// Order by index; the API does not promise input order.
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return vecs, nil
}

// classifyOpenAIError maps go-openai failures that carry an HTTP status to
// *APIError so callers can ask whether a retry makes sense.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: "openai", StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{Provider: "openai", StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return fmt.Errorf("send request: %w", err)
}
