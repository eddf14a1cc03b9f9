// Package advisor implements the conversational course advisor: intent
// classification, the specialised responders, the response supervisor,
// the per-turn state machine and the process-wide session registry.
package advisor

import (
	"strconv"
	"strings"
	"time"
)

// Action is the classified intent of an utterance.
type Action string

const (
	ActionRecommendation Action = "recommendation"
	ActionInquiry        Action = "inquiry"
	ActionClarification  Action = "clarification_needed"
)

// ParseAction maps model output to an Action. Matching ignores case and
// surrounding whitespace.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionRecommendation:
		return ActionRecommendation, true
	case ActionInquiry:
		return ActionInquiry, true
	case ActionClarification:
		return ActionClarification, true
	default:
		return "", false
	}
}

// State is a node of the turn state machine.
type State int

const (
	StateDecision State = iota
	StateRecommendation
	StateInquiry
	StateClarification
	StateSupervisor
	StateTitle
	StatePersist
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateDecision:
		return "decision"
	case StateRecommendation:
		return "recommendation_agent"
	case StateInquiry:
		return "inquiry_agent"
	case StateClarification:
		return "clarification_agent"
	case StateSupervisor:
		return "supervisor"
	case StateTitle:
		return "title_generation"
	case StatePersist:
		return "persist"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// branchFor is the transition out of StateDecision.
func branchFor(a Action) State {
	switch a {
	case ActionRecommendation:
		return StateRecommendation
	case ActionInquiry:
		return StateInquiry
	case ActionClarification:
		return StateClarification
	default:
		return StateClarification
	}
}

// Decision is the classifier's reading of one utterance.
type Decision struct {
	Action        Action   `json:"action"`
	CareerGoal    []string `json:"career_goal"`
	CourseName    []string `json:"course_name"`
	CourseWork    []string `json:"course_work"`
	OriginalQuery string   `json:"original_query"`
	Reasoning     string   `json:"reasoning"`
}

// Utterance is one message of a conversation.
type Utterance struct {
	Role      string    `json:"role"`
	Text      string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Payload kinds.
const (
	KindRecommendation = "recommendation"
	KindInquiry        = "inquiry"
	KindClarification  = "clarification"
	KindApology        = "apology"
)

// Draft is the structured output of a responder.
type Draft interface {
	// Kind names the payload variant.
	Kind() string
	// Summary renders the textual fields as plain prose. It is what the
	// user sees when the supervisor cannot rewrite the draft.
	Summary() string
}

// CourseRecommendation is one suggested course.
type CourseRecommendation struct {
	CourseID           string   `json:"course_id"`
	CourseCode         string   `json:"course_code"`
	CourseTitle        string   `json:"course_title"`
	CourseDescription  string   `json:"course_description"`
	SkillDevelopment   []string `json:"skill_development"`
	CareerAlignment    string   `json:"career_alignment"`
	RelevanceReasoning string   `json:"relevance_reasoning"`
}

// RecommendationPayload is the recommendation responder's draft.
type RecommendationPayload struct {
	RecommendedCourses     []CourseRecommendation `json:"recommended_courses"`
	RecommendationStrategy string                 `json:"recommendation_strategy"`
	AdditionalGuidance     string                 `json:"additional_guidance,omitempty"`
}

func (p *RecommendationPayload) Kind() string { return KindRecommendation }

func (p *RecommendationPayload) Summary() string {
	var b strings.Builder
	if p.RecommendationStrategy != "" {
		b.WriteString(p.RecommendationStrategy)
		b.WriteString("\n\n")
	}
	for i, c := range p.RecommendedCourses {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(courseLabel(c.CourseCode, c.CourseTitle))
		if c.CourseDescription != "" {
			b.WriteString(": ")
			b.WriteString(c.CourseDescription)
		}
		if c.RelevanceReasoning != "" {
			b.WriteString(" ")
			b.WriteString(c.RelevanceReasoning)
		}
		b.WriteString("\n")
	}
	if p.AdditionalGuidance != "" {
		b.WriteString("\n")
		b.WriteString(p.AdditionalGuidance)
	}
	return strings.TrimSpace(b.String())
}

// CourseInformation describes a single course.
type CourseInformation struct {
	CourseID         string   `json:"course_id"`
	CourseName       string   `json:"course_name"`
	CourseTitle      string   `json:"course_title"`
	Description      string   `json:"description"`
	Prerequisites    []string `json:"prerequisites"`
	Credits          [2]int   `json:"credits"`
	TypicallyOffered string   `json:"typically_offered"`
}

// InquiryPayload is the inquiry responder's draft.
type InquiryPayload struct {
	CourseInformation CourseInformation `json:"course_information"`
	RelatedCourses    []string          `json:"related_courses,omitempty"`
	AdditionalDetails string            `json:"additional_details,omitempty"`
}

func (p *InquiryPayload) Kind() string { return KindInquiry }

func (p *InquiryPayload) Summary() string {
	info := p.CourseInformation
	var b strings.Builder
	b.WriteString(courseLabel(info.CourseName, info.CourseTitle))
	if info.Description != "" {
		b.WriteString(": ")
		b.WriteString(info.Description)
	}
	b.WriteString("\nCredits: ")
	b.WriteString(creditText(info.Credits))
	if info.TypicallyOffered != "" {
		b.WriteString("\nOffered: ")
		b.WriteString(info.TypicallyOffered)
	}
	if len(info.Prerequisites) > 0 {
		b.WriteString("\nPrerequisites: ")
		b.WriteString(strings.Join(info.Prerequisites, ", "))
	} else {
		b.WriteString("\nPrerequisites: none")
	}
	if len(p.RelatedCourses) > 0 {
		b.WriteString("\nRelated courses: ")
		b.WriteString(strings.Join(p.RelatedCourses, ", "))
	}
	if p.AdditionalDetails != "" {
		b.WriteString("\n")
		b.WriteString(p.AdditionalDetails)
	}
	return b.String()
}

// ClarificationPayload is the clarification responder's draft.
type ClarificationPayload struct {
	ClarificationQuestion string   `json:"clarification_question"`
	PossibleIntents       []string `json:"possible_intents"`
}

func (p *ClarificationPayload) Kind() string { return KindClarification }

func (p *ClarificationPayload) Summary() string {
	if len(p.PossibleIntents) == 0 {
		return p.ClarificationQuestion
	}
	return p.ClarificationQuestion + "\nI can help with: " + strings.Join(p.PossibleIntents, ", ") + "."
}

// ApologyPayload replaces a draft when there is nothing useful to say.
type ApologyPayload struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

func (p *ApologyPayload) Kind() string { return KindApology }

func (p *ApologyPayload) Summary() string { return p.Message }

// Apology reasons.
const (
	ReasonNoCandidates        = "no_eligible_courses"
	ReasonRetrievalFailed     = "retrieval_unavailable"
	ReasonEmbeddingFailed     = "embedding_unavailable"
	ReasonCourseNotIdentified = "course_not_identified"
)

// TurnRequest is one incoming utterance.
type TurnRequest struct {
	UserID    string `json:"user_id"`
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	// NewSession starts a fresh session even when the user has one.
	NewSession bool `json:"new_session,omitempty"`
}

// TurnResult is the outcome of one turn. PayloadKind repeats
// Payload.Kind() for clients decoding the payload.
type TurnResult struct {
	FinalText   string `json:"final_text"`
	Payload     Draft  `json:"payload,omitempty"`
	PayloadKind string `json:"payload_kind,omitempty"`
	Title       string `json:"title,omitempty"`
	SessionID   string `json:"session_id"`
	Action      Action `json:"action"`
	Failed      bool   `json:"failed"`
}

// ApologyText is the reply to a turn that failed.
const ApologyText = "I'm sorry, I encountered an error while processing your request. Please try again with a clearer question about your course needs or career goals."

func courseLabel(code, title string) string {
	switch {
	case code != "" && title != "":
		return code + " " + title
	case title != "":
		return title
	default:
		return code
	}
}

func creditText(r [2]int) string {
	if r[0] == r[1] {
		return strconv.Itoa(r[0])
	}
	return strconv.Itoa(r[0]) + "-" + strconv.Itoa(r[1])
}
