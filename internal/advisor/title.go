package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/garyellow/course-advisor-go/internal/genai"
)

// maxTitleWords bounds generated session titles.
const maxTitleWords = 5

// TitleGenerator names a session after its first utterance.
type TitleGenerator struct {
	gen genai.TextGenerator
	now func() time.Time
}

// NewTitleGenerator creates a title generator.
func NewTitleGenerator(gen genai.TextGenerator) *TitleGenerator {
	return &TitleGenerator{gen: gen, now: time.Now}
}

// Generate returns a title of at most five words. An empty model reply
// falls back to the first four words of the utterance; a failed call
// falls back to a dated generic title.
func (t *TitleGenerator) Generate(ctx context.Context, utterance string) string {
	text, err := genai.CompleteText(ctx, t.gen, genai.Request{
		Operation:   "title",
		System:      TitleSystemPrompt,
		Prompt:      titlePrompt(utterance),
		Temperature: 0.3,
		MaxTokens:   32,
	})
	if err != nil {
		slog.DebugContext(ctx, "Title generation failed", "error", err)
		return datedTitle(t.now())
	}
	if title := cleanTitle(text); title != "" {
		return title
	}
	if title := leadingWords(utterance, 4); title != "" {
		return title
	}
	return datedTitle(t.now())
}

func datedTitle(now time.Time) string {
	return fmt.Sprintf("Course Conversation %s", now.Format(time.DateOnly))
}

// cleanTitle keeps the first line, strips a "Title:" label, quotes and
// markdown emphasis, and truncates to maxTitleWords.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) >= 6 && strings.EqualFold(s[:6], "title:") {
		s = s[6:]
	}
	s = strings.Trim(s, " \t\"'`*#")
	words := strings.Fields(s)
	if len(words) > maxTitleWords {
		words = words[:maxTitleWords]
	}
	return strings.Join(words, " ")
}

// leadingWords returns the first n words, with "..." when more follow.
func leadingWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "..."
}
