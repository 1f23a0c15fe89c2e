// Package collector gathers raw text from URLs and uploaded files. A failing
// source is reported and skipped; it never aborts the rest of the batch.
package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/docqa/internal/document"
	"github.com/dgallion1/docqa/internal/parser"
)

// Upload is a file submitted by the user.
type Upload struct {
	Name string
	Data []byte
}

// Input is everything submitted for one process run.
type Input struct {
	URLs  []string
	Files []Upload
}

// Status is the outcome of one submitted item.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// IngestError describes why one item was not ingested.
type IngestError struct {
	Origin document.Origin
	Err    error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Origin.Kind, e.Origin.Name, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// ItemResult is the report line for one item.
type ItemResult struct {
	Origin document.Origin `json:"origin"`
	Status Status          `json:"status"`
	Chars  int             `json:"chars,omitempty"`
	Error  string          `json:"error,omitempty"`

	err error
}

// Report aggregates per-item outcomes in submission order, URLs first.
type Report struct {
	Items []ItemResult `json:"items"`
}

// Errors returns an *IngestError for every skipped or failed item.
func (r Report) Errors() []*IngestError {
	var out []*IngestError
	for _, it := range r.Items {
		if it.err != nil {
			out = append(out, &IngestError{Origin: it.Origin, Err: it.err})
		}
	}
	return out
}

// Count returns how many items ended with status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, it := range r.Items {
		if it.Status == s {
			n++
		}
	}
	return n
}

func (r *Report) add(origin document.Origin, status Status, chars int, err error) {
	it := ItemResult{Origin: origin, Status: status, Chars: chars, err: err}
	if err != nil {
		it.Error = err.Error()
	}
	r.Items = append(r.Items, it)
}

type Collector struct {
	fetch        FetchStrategy
	registry     *parser.Registry
	fetchTimeout time.Duration
	log          *slog.Logger
}

func New(fetch FetchStrategy, registry *parser.Registry, fetchTimeout time.Duration, log *slog.Logger) *Collector {
	return &Collector{fetch: fetch, registry: registry, fetchTimeout: fetchTimeout, log: log}
}

// Collect ingests every non-blank URL and every upload. Documents come back
// in submission order. A document whose text is empty is still returned;
// the chunker decides whether anything usable remains.
func (c *Collector) Collect(ctx context.Context, in Input) ([]document.RawDocument, Report) {
	var docs []document.RawDocument
	var report Report

	for _, raw := range in.URLs {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		origin := document.Origin{Kind: document.SourceURL, Name: u}

		text, err := c.fetchOne(ctx, u)
		if err != nil {
			c.log.Warn("url ingestion failed", "url", u, "strategy", c.fetch.Name(), "error", err)
			report.add(origin, StatusFailed, 0, err)
			continue
		}
		docs = append(docs, document.RawDocument{Content: text, Origin: origin})
		report.add(origin, StatusOK, len(text), nil)
	}

	for _, f := range in.Files {
		origin := document.Origin{Kind: document.SourceFile, Name: f.Name}

		ext, err := c.registry.For(f.Name)
		if err != nil {
			c.log.Warn("skipping unsupported file", "file", f.Name, "supported", c.registry.Extensions())
			report.add(origin, StatusSkipped, 0, err)
			continue
		}

		text, err := ext.Extract(bytes.NewReader(f.Data), f.Name)
		if err != nil {
			c.log.Warn("file extraction failed", "file", f.Name, "error", err)
			report.add(origin, StatusFailed, 0, err)
			continue
		}
		docs = append(docs, document.RawDocument{Content: text, Origin: origin})
		report.add(origin, StatusOK, len(text), nil)
	}

	c.log.Info("collection finished",
		"documents", len(docs),
		"failed", report.Count(StatusFailed),
		"skipped", report.Count(StatusSkipped),
	)
	return docs, report
}

func (c *Collector) fetchOne(ctx context.Context, u string) (string, error) {
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}
	text, err := c.fetch.Fetch(ctx, u)
	if errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("fetch timed out after %s: %w", c.fetchTimeout, err)
	}
	return text, err
}
