package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docqa/internal/document"
)

// Config controls chunking behavior.
type Config struct {
	ChunkSize  int      // Maximum chunk length in characters (runes).
	Separators []string // Split points, coarsest first.
}

// DefaultConfig splits on paragraphs, then lines, sentences and clauses.
func DefaultConfig() Config {
	return Config{
		ChunkSize:  1000,
		Separators: []string{"\n\n", "\n", ".", ","},
	}
}

// Split breaks every document into chunks of at most cfg.ChunkSize runes.
// Chunks keep document order and carry their parent's origin. Chunks that
// are blank after trimming are dropped, so an empty document yields none.
func Split(docs []document.RawDocument, cfg Config) []document.Chunk {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.Separators == nil {
		cfg.Separators = DefaultConfig().Separators
	}

	var chunks []document.Chunk
	for _, doc := range docs {
		index := 0
		for _, part := range splitText(doc.Content, cfg.Separators, cfg.ChunkSize) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			chunks = append(chunks, document.Chunk{
				Text:   part,
				Source: doc.Origin,
				Index:  index,
			})
			index++
		}
	}
	return chunks
}

// splitText returns consecutive pieces of text whose concatenation is text
// and whose lengths are all within max.
func splitText(text string, separators []string, max int) []string {
	if runeLen(text) <= max {
		return []string{text}
	}

	sep, rest := "", []string(nil)
	for i, s := range separators {
		if s != "" && strings.Contains(text, s) {
			sep, rest = s, separators[i+1:]
			break
		}
	}
	if sep == "" {
		return hardCut(text, max)
	}

	var result []string
	var current strings.Builder
	currentLen := 0
	flush := func() {
		if currentLen > 0 {
			result = append(result, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	// SplitAfter keeps each separator attached to the piece it ends.
	for _, piece := range strings.SplitAfter(text, sep) {
		if piece == "" {
			continue
		}
		n := runeLen(piece)
		if n > max {
			flush()
			result = append(result, splitText(piece, rest, max)...)
			continue
		}
		if currentLen+n > max {
			flush()
		}
		current.WriteString(piece)
		currentLen += n
	}
	flush()

	return result
}

// hardCut splits text into max-rune windows.
func hardCut(text string, max int) []string {
	var result []string
	for text != "" {
		end, count := 0, 0
		for end < len(text) && count < max {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
			count++
		}
		result = append(result, text[:end])
		text = text[end:]
	}
	return result
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
