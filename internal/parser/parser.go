package parser

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sort"
	"strings"
)

// Extractor converts raw document bytes into plain text. Structural blocks
// (paragraphs, headings, pages) are separated by a blank line.
type Extractor interface {
	Extract(r io.Reader, filename string) (string, error)
}

// ErrUnsupported is returned by Registry.For for extensions with no extractor.
type ErrUnsupported struct {
	Ext string
}

func (e *ErrUnsupported) Error() string {
	if e.Ext == "" {
		return "unsupported file: no extension"
	}
	return fmt.Sprintf("unsupported file extension: %s", e.Ext)
}

// Registry maps normalized file extensions to extractors.
type Registry struct {
	byExt map[string]Extractor
}

func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Extractor)}
}

// DefaultRegistry handles the upload formats: plain text, PDF and DOCX.
func DefaultRegistry(pdfFallback bool) *Registry {
	r := NewRegistry()
	r.Register(".txt", &TextExtractor{})
	r.Register(".pdf", &PDFExtractor{FallbackPdftotext: pdfFallback})
	r.Register(".docx", &DOCXExtractor{})
	return r
}

// Register binds ext (with or without the leading dot, any case) to e.
func (r *Registry) Register(ext string, e Extractor) {
	r.byExt[normalizeExt(ext)] = e
}

// For returns the extractor for filename's extension.
func (r *Registry) For(filename string) (Extractor, error) {
	ext := normalizeExt(filepath.Ext(filename))
	e, ok := r.byExt[ext]
	if !ok {
		return nil, &ErrUnsupported{Ext: ext}
	}
	return e, nil
}

// Supports reports whether filename has a registered extension.
func (r *Registry) Supports(filename string) bool {
	_, ok := r.byExt[normalizeExt(filepath.Ext(filename))]
	return ok
}

// Extensions lists registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// ForContentType picks an extractor for a fetched web resource. Unknown
// types are decoded as text.
func ForContentType(contentType string, pdfFallback bool) Extractor {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case mt == "text/html" || mt == "application/xhtml+xml":
		return &HTMLExtractor{}
	case mt == "application/pdf":
		return &PDFExtractor{FallbackPdftotext: pdfFallback}
	case mt == "text/markdown" || mt == "text/x-markdown":
		return &MarkdownExtractor{}
	case mt == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return &DOCXExtractor{}
	default:
		return &TextExtractor{}
	}
}

// joinBlocks trims each block, drops empty ones and joins the rest with a
// blank line.
func joinBlocks(blocks []string) string {
	kept := blocks[:0]
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" {
			kept = append(kept, b)
		}
	}
	return strings.Join(kept, "\n\n")
}
