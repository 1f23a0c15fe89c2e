// Package llm talks to hosted chat models. Calls are never retried here;
// transient failures surface as *RetryableError for the caller to report.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Completer sends one prompt and returns the model's text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Params are the sampling settings shared by all providers.
type Params struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultParams matches the answer chain's original settings.
func DefaultParams() Params {
	return Params{Temperature: 0.6, MaxTokens: 500, Timeout: 120 * time.Second}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.MaxTokens <= 0 {
		p.MaxTokens = d.MaxTokens
	}
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	return p
}

// RetryableError indicates a transient failure (rate limit or server error).
type RetryableError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: retryable error (status %d): %s", e.Provider, e.StatusCode, truncate(e.Message, 200))
}

// Retryable always reports true.
func (e *RetryableError) Retryable() bool { return true }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Instrumented records the latency and outcome of every call in stats.
type Instrumented struct {
	next  Completer
	stats *LLMStats
}

func WithStats(next Completer, stats *LLMStats) *Instrumented {
	return &Instrumented{next: next, stats: stats}
}

func (c *Instrumented) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := c.next.Complete(ctx, prompt)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		c.stats.RecordError(elapsed)
		return "", err
	}
	c.stats.Record(elapsed)
	return out, nil
}

func (c *Instrumented) Model() string { return c.next.Model() }

// Stats returns the collector the wrapper writes to.
func (c *Instrumented) Stats() *LLMStats { return c.stats }
