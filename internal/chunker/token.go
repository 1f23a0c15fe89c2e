package chunker

import "strings"

// EstimateTokens gives a rough token count from the word count. Exact
// tokenization is not needed for reporting.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	// Roughly 1.33 tokens per English word.
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// EstimateChunkTokens sums EstimateTokens over texts.
func EstimateChunkTokens(texts []string) int {
	total := 0
	for _, t := range texts {
		total += EstimateTokens(t)
	}
	return total
}
