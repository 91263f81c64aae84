package llm

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/medsage/medsage-api/internal/apperr"
	"github.com/medsage/medsage-api/internal/domain"
)

const answerPromptTemplate = `Context information is below.
---------------------
{context}
---------------------
Given the context information and not prior knowledge, answer the query.
Query: {query}
Answer:`

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Synthesizer turns a compressed context and the user query into the final
// answer text.
type Synthesizer struct {
	client           Client
	promptCharLimit  int
	contextSeparator string
}

func NewSynthesizer(client Client, promptCharLimit int) *Synthesizer {
	return &Synthesizer{
		client:           client,
		promptCharLimit:  promptCharLimit,
		contextSeparator: "\n",
	}
}

// Synthesize builds the grounded QA prompt from the compressed segments and
// generates the answer. An empty generation is an upstream error, never an
// empty success.
func (s *Synthesizer) Synthesize(ctx context.Context, queryText string, compressed *domain.CompressedContext) (string, error) {
	contextText := strings.Join(compressed.PromptSegments, s.contextSeparator)

	prompt := strings.NewReplacer(
		"{context}", contextText,
		"{query}", queryText,
	).Replace(answerPromptTemplate)
	if s.promptCharLimit > 0 {
		prompt = truncate(prompt, s.promptCharLimit)
	}

	answer, err := s.client.Generate(ctx, prompt)
	if err != nil {
		return "", apperr.Upstream("synthesis", err)
	}

	answer = cleanAnswer(answer)
	if answer == "" {
		return "", apperr.Upstream("synthesis", apperr.ErrNoResults)
	}
	return answer, nil
}

// cleanAnswer strips markup tags and collapses the answer onto one line.
func cleanAnswer(text string) string {
	text = tagPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(text)
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
