package advisor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/garyellow/course-advisor-go/internal/genai"
)

// Supervisor rewrites a responder draft into the final reply.
type Supervisor struct {
	gen genai.TextGenerator
}

// NewSupervisor creates a supervisor.
func NewSupervisor(gen genai.TextGenerator) *Supervisor {
	return &Supervisor{gen: gen}
}

// Compose merges draft with the conversation so far. When the rewrite is
// unavailable the draft's own text is returned, so the user still gets
// the underlying information.
func (s *Supervisor) Compose(ctx context.Context, history []Utterance, utterance string, draft Draft) string {
	text, err := genai.CompleteText(ctx, s.gen, genai.Request{
		Operation:   "supervise",
		System:      SupervisorSystemPrompt,
		Prompt:      supervisorPrompt(history, utterance, draft),
		Temperature: 0.4,
		MaxTokens:   2048,
	})
	if text = strings.TrimSpace(text); err != nil || text == "" {
		slog.WarnContext(ctx, "Supervisor unavailable, replying with draft text",
			"draft", draft.Kind(),
			"error", err)
		return draft.Summary()
	}
	return text
}
