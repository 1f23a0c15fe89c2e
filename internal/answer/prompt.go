package answer

import (
	"regexp"
	"strings"

	"github.com/dgallion1/docqa/internal/document"
)

const instructions = `Given the following extracted parts of one or more documents and a question, create a final answer with references ("SOURCES").
If you don't know the answer, just say that you don't know. Don't try to make up an answer.
ALWAYS return a "SOURCES" part in your answer, listing each source you used on its own line.`

// BuildPrompt renders the question, the prior conversation and the
// retrieved chunks into a single prompt.
func BuildPrompt(question string, chunks []document.Chunk, history []Turn) string {
	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\n")

	if len(history) > 0 {
		sb.WriteString("CONVERSATION SO FAR:\n")
		for _, t := range history {
			sb.WriteString("Q: ")
			sb.WriteString(t.Question)
			sb.WriteString("\nA: ")
			sb.WriteString(t.Answer)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("QUESTION: ")
	sb.WriteString(question)
	sb.WriteString("\n=========\n")
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Content: ")
		sb.WriteString(c.Text)
		sb.WriteString("\nSource: ")
		sb.WriteString(c.Label())
		sb.WriteString("\n")
	}
	sb.WriteString("=========\nFINAL ANSWER:")
	return sb.String()
}

var (
	sourcesMarker = regexp.MustCompile(`(?i)\bSOURCES?\s*:`)
	answerPrefix  = regexp.MustCompile(`(?i)^FINAL ANSWER\s*:\s*`)
)

// ParseResponse splits a model reply into the answer text and its sources.
// Everything after the first SOURCES: marker is read as one source per line.
// A reply without the marker has no sources.
func ParseResponse(raw string) Result {
	text := answerPrefix.ReplaceAllString(strings.TrimSpace(raw), "")

	loc := sourcesMarker.FindStringIndex(text)
	if loc == nil {
		return Result{Answer: strings.TrimSpace(text), Sources: []string{}}
	}

	sources := []string{}
	for _, line := range strings.Split(text[loc[1]:], "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimLeft(line, "-*•"))
		if line != "" {
			sources = append(sources, line)
		}
	}
	return Result{Answer: strings.TrimSpace(text[:loc[0]]), Sources: sources}
}

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`act\s+as\s+|pretend\s+|forget\s+(everything|all)|` +
		`new\s+instructions)`,
)

// looksLikeInjection flags retrieved text that reads like instructions to
// the model rather than document content.
func looksLikeInjection(text string) bool {
	return injectionPattern.MatchString(text)
}
