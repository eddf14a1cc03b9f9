package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/garyellow/course-advisor-go/internal/errors"
	"github.com/garyellow/course-advisor-go/internal/genai"
	"github.com/garyellow/course-advisor-go/internal/retrieval"
	"github.com/garyellow/course-advisor-go/internal/sliceutil"
)

// RecommendationCount is how many courses a recommendation suggests.
const RecommendationCount = 5

// maxRelatedCourses bounds InquiryPayload.RelatedCourses.
const maxRelatedCourses = 3

// CandidateRetriever returns eligible courses ranked against goal phrases.
// *retrieval.Retriever satisfies it.
type CandidateRetriever interface {
	Retrieve(ctx context.Context, userID string, goal []string, topN int) ([]retrieval.CandidateCourse, error)
}

// Responders produce the draft for each branch of the state machine.
type Responders struct {
	gen       genai.TextGenerator
	retriever CandidateRetriever
	topN      int
}

// NewResponders creates the responders. topN <= 0 uses the retriever's default.
func NewResponders(gen genai.TextGenerator, retriever CandidateRetriever, topN int) *Responders {
	return &Responders{gen: gen, retriever: retriever, topN: topN}
}

// Recommend drafts course recommendations for the decision's career goal.
//
// Retrieval failures and an empty candidate list produce an apology
// payload. A reply that cannot be parsed is replaced by a payload built
// from the top candidates. Suggestions naming a course outside the
// candidate list are dropped. Only a gateway failure is returned as an
// error.
func (r *Responders) Recommend(ctx context.Context, userID string, d Decision) (Draft, error) {
	goal := queryTerms(d.CareerGoal, d.CourseWork, d.OriginalQuery)
	candidates, apology := r.retrieve(ctx, userID, goal)
	if apology != nil {
		return apology, nil
	}

	reply, err := genai.CompleteJSON(ctx, r.gen, genai.Request{
		Operation:   "recommend",
		System:      RecommendationSystemPrompt,
		Prompt:      recommendationPrompt(goal, candidates),
		Temperature: 0.3,
		MaxTokens:   2048,
	}, func(p *RecommendationPayload) error {
		if len(p.RecommendedCourses) == 0 {
			return errors.New("no recommended courses")
		}
		return nil
	})
	switch {
	case errors.Is(err, apperrors.ErrMalformedModelOutput):
		slog.WarnContext(ctx, "Recommendation reply malformed, using ranked candidates",
			"error", err)
		return fallbackRecommendation(goal, candidates), nil
	case err != nil:
		return nil, fmt.Errorf("recommend: %w", err)
	}

	return groundRecommendation(reply, goal, candidates), nil
}

// Inquire drafts information about the course named in the decision.
// Failure handling mirrors Recommend.
func (r *Responders) Inquire(ctx context.Context, userID string, d Decision) (Draft, error) {
	names := queryTerms(d.CourseName, d.CourseWork, d.OriginalQuery)
	candidates, apology := r.retrieve(ctx, userID, names)
	if apology != nil {
		return apology, nil
	}

	reply, err := genai.CompleteJSON(ctx, r.gen, genai.Request{
		Operation:   "inquire",
		System:      InquirySystemPrompt,
		Prompt:      inquiryPrompt(names, candidates),
		Temperature: 0.2,
		MaxTokens:   1024,
	}, func(p *InquiryPayload) error {
		if strings.TrimSpace(p.CourseInformation.CourseID) == "" {
			return errors.New("missing course_id")
		}
		return nil
	})
	switch {
	case errors.Is(err, apperrors.ErrMalformedModelOutput):
		slog.WarnContext(ctx, "Inquiry reply malformed, using best candidate",
			"error", err)
		return inquiryFromCandidates(candidates, 0, ""), nil
	case err != nil:
		return nil, fmt.Errorf("inquire: %w", err)
	}

	idx := candidateIndex(candidates, reply.CourseInformation.CourseID)
	if idx < 0 {
		slog.WarnContext(ctx, "Inquiry reply named an unknown course, using best candidate",
			"course_id", reply.CourseInformation.CourseID)
		idx = 0
	}
	return inquiryFromCandidates(candidates, idx, reply.AdditionalDetails), nil
}

// Clarify drafts a clarifying question. It always succeeds.
func (r *Responders) Clarify(ctx context.Context, utterance string) Draft {
	reply, err := genai.CompleteJSON(ctx, r.gen, genai.Request{
		Operation:   "clarify",
		System:      ClarificationSystemPrompt,
		Prompt:      clarificationPrompt(utterance),
		Temperature: 0.5,
		MaxTokens:   256,
	}, func(p *ClarificationPayload) error {
		if strings.TrimSpace(p.ClarificationQuestion) == "" {
			return errors.New("empty clarification question")
		}
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "Clarification unavailable, using generic question",
			"error", err)
		return genericClarification()
	}
	reply.ClarificationQuestion = strings.TrimSpace(reply.ClarificationQuestion)
	reply.PossibleIntents = cleanPhrases(reply.PossibleIntents)
	return reply
}

// retrieve returns either candidates or the apology to show instead.
func (r *Responders) retrieve(ctx context.Context, userID string, goal []string) ([]retrieval.CandidateCourse, *ApologyPayload) {
	candidates, err := r.retriever.Retrieve(ctx, userID, goal, r.topN)
	switch {
	case errors.Is(err, apperrors.ErrEmbeddingUnavailable):
		return nil, &ApologyPayload{
			Message: "I'm sorry, I can't search the course catalog right now. Please try again in a few minutes.",
			Reason:  ReasonEmbeddingFailed,
		}
	case err != nil:
		return nil, &ApologyPayload{
			Message: "I'm sorry, I couldn't look up your course records right now. Please try again in a few minutes.",
			Reason:  ReasonRetrievalFailed,
		}
	case len(candidates) == 0:
		return nil, &ApologyPayload{
			Message: "I'm sorry, I couldn't find any courses you are eligible for next semester that match " +
				quoteTerms(goal) + ". Try describing your goal differently, or check that your credit and semester details are up to date.",
			Reason: ReasonNoCandidates,
		}
	}
	return candidates, nil
}

// groundRecommendation keeps suggestions whose course_id is a candidate,
// overwrites their catalog fields from the candidate, and tops the list up
// from the ranking until it holds RecommendationCount courses or the
// candidates run out.
func groundRecommendation(reply *RecommendationPayload, goal []string, candidates []retrieval.CandidateCourse) *RecommendationPayload {
	kept := make([]CourseRecommendation, 0, RecommendationCount)
	for _, rec := range sliceutil.Deduplicate(reply.RecommendedCourses, func(c CourseRecommendation) string {
		return strings.TrimSpace(c.CourseID)
	}) {
		idx := candidateIndex(candidates, rec.CourseID)
		if idx < 0 {
			continue
		}
		c := candidates[idx]
		rec.CourseID = c.CourseID
		rec.CourseCode = c.Name
		rec.CourseTitle = c.Title
		if rec.CourseDescription == "" {
			rec.CourseDescription = shorten(c.Description, 240)
		}
		kept = append(kept, rec)
		if len(kept) == RecommendationCount {
			break
		}
	}
	if len(kept) == 0 {
		return fallbackRecommendation(goal, candidates)
	}

	for _, c := range candidates {
		if len(kept) == RecommendationCount {
			break
		}
		if !containsCourse(kept, c.CourseID) {
			kept = append(kept, recommendationFromCandidate(c, goal))
		}
	}

	reply.RecommendedCourses = kept
	return reply
}

func fallbackRecommendation(goal []string, candidates []retrieval.CandidateCourse) *RecommendationPayload {
	n := min(RecommendationCount, len(candidates))
	recs := make([]CourseRecommendation, 0, n)
	for _, c := range candidates[:n] {
		recs = append(recs, recommendationFromCandidate(c, goal))
	}
	return &RecommendationPayload{
		RecommendedCourses:     recs,
		RecommendationStrategy: "These are the courses you can take next semester that are closest to " + quoteTerms(goal) + ", ranked by relevance.",
	}
}

func recommendationFromCandidate(c retrieval.CandidateCourse, goal []string) CourseRecommendation {
	return CourseRecommendation{
		CourseID:           c.CourseID,
		CourseCode:         c.Name,
		CourseTitle:        c.Title,
		CourseDescription:  shorten(c.Description, 240),
		SkillDevelopment:   []string{},
		CareerAlignment:    "Related to " + quoteTerms(goal),
		RelevanceReasoning: fmt.Sprintf("Relevance score %.2f against your goal.", c.Similarity),
	}
}

// inquiryFromCandidates builds the payload from candidates[idx] with the
// next-ranked candidates as related courses.
func inquiryFromCandidates(candidates []retrieval.CandidateCourse, idx int, details string) *InquiryPayload {
	c := candidates[idx]
	related := make([]string, 0, maxRelatedCourses)
	for i, other := range candidates {
		if i == idx {
			continue
		}
		if len(related) == maxRelatedCourses {
			break
		}
		related = append(related, courseLabel(other.Name, other.Title))
	}
	prereqs := c.Prerequisites
	if prereqs == nil {
		prereqs = []string{}
	}
	return &InquiryPayload{
		CourseInformation: CourseInformation{
			CourseID:         c.CourseID,
			CourseName:       c.Name,
			CourseTitle:      c.Title,
			Description:      c.Description,
			Prerequisites:    prereqs,
			Credits:          c.CreditRange,
			TypicallyOffered: c.OfferedSemester,
		},
		RelatedCourses:    related,
		AdditionalDetails: strings.TrimSpace(details),
	}
}

func genericClarification() *ClarificationPayload {
	return &ClarificationPayload{
		ClarificationQuestion: "Could you tell me a bit more about what you're looking for? For example, a career you're working toward or a specific course you'd like to know about.",
		PossibleIntents:       []string{"Career guidance", "Course selection", "Course details"},
	}
}

// queryTerms picks the first non-empty source of retrieval phrases.
func queryTerms(primary, secondary []string, utterance string) []string {
	switch {
	case len(primary) > 0:
		return primary
	case len(secondary) > 0:
		return secondary
	default:
		return []string{utterance}
	}
}

func candidateIndex(candidates []retrieval.CandidateCourse, courseID string) int {
	courseID = strings.TrimSpace(courseID)
	for i, c := range candidates {
		if c.CourseID == courseID {
			return i
		}
	}
	return -1
}

func containsCourse(recs []CourseRecommendation, courseID string) bool {
	for _, r := range recs {
		if r.CourseID == courseID {
			return true
		}
	}
	return false
}

func quoteTerms(terms []string) string {
	return `"` + strings.Join(terms, ", ") + `"`
}

// shorten cuts s to at most n runes on a word boundary.
func shorten(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	cut := string(r[:n])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
