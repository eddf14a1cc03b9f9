package advisor

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/garyellow/course-advisor-go/internal/genai"
	"github.com/garyellow/course-advisor-go/internal/sliceutil"
)

// Classifier maps an utterance to a Decision with one LLM call.
type Classifier struct {
	gen genai.TextGenerator
}

// NewClassifier creates a classifier. A nil generator classifies every
// utterance as clarification_needed.
func NewClassifier(gen genai.TextGenerator) *Classifier {
	return &Classifier{gen: gen}
}

// decisionReply is the wire shape; Action stays a string until validated.
type decisionReply struct {
	Action        string   `json:"action"`
	CareerGoal    []string `json:"career_goal"`
	CourseName    []string `json:"course_name"`
	CourseWork    []string `json:"course_work"`
	OriginalQuery string   `json:"original_query"`
	Reasoning     string   `json:"reasoning"`
}

func validateDecision(d *decisionReply) error {
	if _, ok := ParseAction(d.Action); !ok {
		return errors.New("unknown action " + d.Action)
	}
	return nil
}

// Classify never fails: a gateway error, a reply that is not the Decision
// shape, or an unknown action all yield clarification_needed with empty
// slot lists.
func (c *Classifier) Classify(ctx context.Context, utterance string) Decision {
	reply, err := genai.CompleteJSON(ctx, c.gen, genai.Request{
		Operation:   "classify",
		System:      ClassifierSystemPrompt,
		Prompt:      classifierPrompt(utterance),
		Temperature: 0,
		MaxTokens:   512,
	}, validateDecision)
	if err != nil {
		slog.WarnContext(ctx, "Intent classification failed, asking for clarification",
			"error", err)
		return clarificationDecision(utterance, "classification unavailable")
	}

	action, _ := ParseAction(reply.Action)
	d := Decision{
		Action:        action,
		CareerGoal:    cleanPhrases(reply.CareerGoal),
		CourseName:    cleanPhrases(reply.CourseName),
		CourseWork:    cleanPhrases(reply.CourseWork),
		OriginalQuery: utterance,
		Reasoning:     strings.TrimSpace(reply.Reasoning),
	}
	slog.DebugContext(ctx, "Utterance classified",
		"action", d.Action,
		"career_goal", d.CareerGoal,
		"course_name", d.CourseName)
	return d
}

func clarificationDecision(utterance, reasoning string) Decision {
	return Decision{
		Action:        ActionClarification,
		CareerGoal:    []string{},
		CourseName:    []string{},
		CourseWork:    []string{},
		OriginalQuery: utterance,
		Reasoning:     reasoning,
	}
}

// cleanPhrases trims entries and drops empty and case-insensitively
// duplicate ones. The result is never nil.
func cleanPhrases(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return sliceutil.Deduplicate(out, strings.ToLower)
}
