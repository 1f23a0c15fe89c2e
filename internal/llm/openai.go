package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultOpenAIURL = "https://api.openai.com/v1"

// OpenAIClient calls the OpenAI chat completions API, or any server that
// speaks the same protocol.
type OpenAIClient struct {
	client     *openai.Client
	httpClient *http.Client
	model      string
	params     Params
}

func NewOpenAIClient(apiKey, model, baseURL string, params Params) *OpenAIClient {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	params = params.withDefaults()
	httpClient := &http.Client{Timeout: params.Timeout}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = httpClient

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(cfg),
		httpClient: httpClient,
		model:      model,
		params:     params,
	}
}

func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(c.params.Temperature),
		MaxTokens:   c.params.MaxTokens,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyOpenAIError turns rate limits and server errors into
// *RetryableError and wraps everything else.
func classifyOpenAIError(err error) error {
	status := openAIStatusCode(err)
	if status == http.StatusTooManyRequests || status >= 500 {
		return &RetryableError{Provider: "openai", StatusCode: status, Message: err.Error()}
	}
	return fmt.Errorf("openai api: %w", err)
}

// openAIStatusCode extracts the HTTP status from a go-openai error, or 0
// when the request never got a response.
func openAIStatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// Close releases resources.
func (c *OpenAIClient) Close() {
	c.httpClient.CloseIdleConnections()
}
