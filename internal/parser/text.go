package parser

import (
	"fmt"
	"io"
	"strings"
)

// TextExtractor decodes plain text as UTF-8. Undecodable byte sequences are
// dropped and line endings are normalized to \n.
type TextExtractor struct{}

func (p *TextExtractor) Extract(r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filename, err)
	}
	s := strings.ToValidUTF8(string(data), "")
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s, nil
}
