package parser

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(false)

	tests := []struct {
		filename string
		want     bool
	}{
		{"notes.txt", true},
		{"NOTES.TXT", true},
		{"report.pdf", true},
		{"memo.docx", true},
		{"data.csv", false},
		{"readme.md", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := r.Supports(tt.filename); got != tt.want {
			t.Errorf("Supports(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}

	_, err := r.For("data.csv")
	var unsupported *ErrUnsupported
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if unsupported.Ext != ".csv" {
		t.Errorf("expected ext .csv, got %q", unsupported.Ext)
	}

	if got := strings.Join(r.Extensions(), ","); got != ".docx,.pdf,.txt" {
		t.Errorf("Extensions() = %q", got)
	}
}

func TestRegistry_RegisterNormalizes(t *testing.T) {
	r := NewRegistry()
	r.Register("MD", &MarkdownExtractor{})
	if !r.Supports("guide.md") {
		t.Error("expected .md to be supported after Register(\"MD\")")
	}
}

func TestForContentType(t *testing.T) {
	tests := []struct {
		ct   string
		want string
	}{
		{"text/html; charset=utf-8", "*parser.HTMLExtractor"},
		{"application/pdf", "*parser.PDFExtractor"},
		{"text/markdown", "*parser.MarkdownExtractor"},
		{"text/plain", "*parser.TextExtractor"},
		{"", "*parser.TextExtractor"},
	}
	for _, tt := range tests {
		got := typeName(ForContentType(tt.ct, false))
		if got != tt.want {
			t.Errorf("ForContentType(%q) = %s, want %s", tt.ct, got, tt.want)
		}
	}
}

func typeName(e Extractor) string {
	switch e.(type) {
	case *HTMLExtractor:
		return "*parser.HTMLExtractor"
	case *PDFExtractor:
		return "*parser.PDFExtractor"
	case *MarkdownExtractor:
		return "*parser.MarkdownExtractor"
	case *DOCXExtractor:
		return "*parser.DOCXExtractor"
	case *TextExtractor:
		return "*parser.TextExtractor"
	}
	return "unknown"
}

func TestTempFilesRemovedOnFailure(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)

	if _, err := (&PDFExtractor{}).Extract(strings.NewReader("not a pdf"), "broken.pdf"); err == nil {
		t.Error("expected error for invalid pdf")
	}
	if _, err := (&DOCXExtractor{}).Extract(strings.NewReader("not a docx"), "broken.docx"); err == nil {
		t.Error("expected error for invalid docx")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected temp dir to be empty, found %d entries", len(entries))
	}
}
