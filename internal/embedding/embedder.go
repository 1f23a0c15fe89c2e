// Package embedding turns chunk text into fixed-size float32 vectors.
package embedding

import (
	"context"
	"fmt"
	"net/http"
)

// Embedder maps texts to vectors. Embed returns one vector per input, in
// input order, all of the same dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// APIError is a non-2xx response from an embedding backend.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s embeddings: status %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 300))
}

// Retryable reports whether a later attempt could succeed (rate limits and
// server errors).
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
