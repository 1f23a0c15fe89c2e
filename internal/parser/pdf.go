package parser

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// PDFExtractor handles PDF files. It tries the Go library first,
// then falls back to pdftotext if available.
type PDFExtractor struct {
	FallbackPdftotext bool
}

func (p *PDFExtractor) Extract(r io.Reader, filename string) (string, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "docqa-pdf-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	text, err := pdfText(tmpPath)
	if err != nil && p.FallbackPdftotext {
		if alt, altErr := pdftotext(tmpPath); altErr == nil {
			text, err = alt, nil
		}
	}
	if err != nil {
		return "", fmt.Errorf("extract pdf text from %s: %w", filename, err)
	}

	// One block per page.
	return joinBlocks(strings.Split(text, "\f")), nil
}

func pdfText(path string) (text string, err error) {
	// The pdf library panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pt, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if i > 1 {
			buf.WriteString("\f")
		}
		buf.WriteString(pt)
	}
	return buf.String(), nil
}

func pdftotext(path string) (string, error) {
	out, err := exec.Command("pdftotext", "-layout", path, "-").Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}
