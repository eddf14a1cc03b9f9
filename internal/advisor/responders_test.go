package advisor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/garyellow/course-advisor-go/internal/errors"
	"github.com/garyellow/course-advisor-go/internal/genai"
)

func uxDecisionValue() Decision {
	return Decision{
		Action:        ActionRecommendation,
		CareerGoal:    []string{"UX Designer"},
		CourseWork:    []string{"User Interface Design"},
		OriginalQuery: "I want to become a UX Designer",
	}
}

func TestRecommend_GroundsSuggestions(t *testing.T) {
	t.Parallel()

	retriever := &stubRetriever{candidates: candidates("C1", "C2", "C3", "C4", "C5", "C6", "C7")}
	gen := newScripted().reply("recommend", `{
		"recommended_courses": [
			{"course_id":"C3","course_code":"WRONG","course_title":"Made up title","course_description":"Design basics","relevance_reasoning":"core"},
			{"course_id":"FAKE-1","course_title":"Invented"},
			{"course_id":"C1","relevance_reasoning":"research"},
			{"course_id":"C3","relevance_reasoning":"duplicate"}
		],
		"recommendation_strategy":"Design first, research second."
	}`)

	draft, err := NewResponders(gen, retriever, 10).Recommend(context.Background(), "s1", uxDecisionValue())
	require.NoError(t, err)

	payload, ok := draft.(*RecommendationPayload)
	require.True(t, ok, "got %T", draft)
	require.Len(t, payload.RecommendedCourses, RecommendationCount)

	ids := make([]string, 0, len(payload.RecommendedCourses))
	for _, c := range payload.RecommendedCourses {
		ids = append(ids, c.CourseID)
	}
	// Model picks first, then the ranking fills the rest.
	assert.Equal(t, []string{"C3", "C1", "C2", "C4", "C5"}, ids)

	first := payload.RecommendedCourses[0]
	assert.Equal(t, "INFO-I C3", first.CourseCode, "catalog fields come from the candidate")
	assert.Equal(t, "Course C3", first.CourseTitle)
	assert.Equal(t, "Design basics", first.CourseDescription)
	assert.Equal(t, "Design first, research second.", payload.RecommendationStrategy)
	assert.Equal(t, []string{"UX Designer"}, retriever.lastGoal())
}

func TestRecommend_FewerCandidatesThanFive(t *testing.T) {
	t.Parallel()

	retriever := &stubRetriever{candidates: candidates("C1", "C2")}
	gen := newScripted().reply("recommend", uxPicks)

	draft, err := NewResponders(gen, retriever, 10).Recommend(context.Background(), "s1", uxDecisionValue())
	require.NoError(t, err)

	payload := draft.(*RecommendationPayload)
	require.Len(t, payload.RecommendedCourses, 2)
	assert.Equal(t, "C1", payload.RecommendedCourses[0].CourseID)
	assert.Equal(t, "C2", payload.RecommendedCourses[1].CourseID)
}

func TestRecommend_MalformedReplyUsesCandidates(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"prose":             "Here are some great courses for you!",
		"empty list":        `{"recommended_courses":[]}`,
		"only invented ids": `{"recommended_courses":[{"course_id":"NOPE"}]}`,
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			retriever := &stubRetriever{candidates: candidates("C1", "C2", "C3", "C4", "C5", "C6")}
			gen := newScripted().reply("recommend", reply)

			draft, err := NewResponders(gen, retriever, 10).Recommend(context.Background(), "s1", uxDecisionValue())
			require.NoError(t, err)

			payload := draft.(*RecommendationPayload)
			require.Len(t, payload.RecommendedCourses, RecommendationCount)
			for i, c := range payload.RecommendedCourses {
				assert.Equal(t, fmt.Sprintf("C%d", i+1), c.CourseID)
			}
			assert.Contains(t, payload.RecommendationStrategy, "UX Designer")
		})
	}
}

func TestRecommend_Apologies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		retriever  *stubRetriever
		wantReason string
	}{
		{"no candidates", &stubRetriever{}, ReasonNoCandidates},
		{"embedding down", &stubRetriever{err: fmt.Errorf("%w: status 500", apperrors.ErrEmbeddingUnavailable)}, ReasonEmbeddingFailed},
		{"store down", &stubRetriever{err: fmt.Errorf("%w: disk I/O", apperrors.ErrRetrievalUnavailable)}, ReasonRetrievalFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gen := newScripted().reply("recommend", uxPicks)

			draft, err := NewResponders(gen, tt.retriever, 10).Recommend(context.Background(), "s1", uxDecisionValue())
			require.NoError(t, err)

			apology, ok := draft.(*ApologyPayload)
			require.True(t, ok, "got %T", draft)
			assert.Equal(t, tt.wantReason, apology.Reason)
			assert.NotEmpty(t, apology.Message)
			assert.Zero(t, gen.callCount("recommend"), "no LLM call without candidates")
		})
	}
}

func TestRecommend_GatewayFailureIsReturned(t *testing.T) {
	t.Parallel()

	retriever := &stubRetriever{candidates: candidates("C1")}
	gen := newScripted().fail("recommend", errGateway)

	_, err := NewResponders(gen, retriever, 10).Recommend(context.Background(), "s1", uxDecisionValue())
	assert.ErrorIs(t, err, apperrors.ErrGatewayUnavailable)
}

func TestRecommend_GoalFallsBackToUtterance(t *testing.T) {
	t.Parallel()

	retriever := &stubRetriever{}
	d := Decision{Action: ActionRecommendation, OriginalQuery: "switching careers"}

	_, err := NewResponders(newScripted(), retriever, 10).Recommend(context.Background(), "s1", d)
	require.NoError(t, err)
	assert.Equal(t, []string{"switching careers"}, retriever.lastGoal())
}

func TestInquire(t *testing.T) {
	t.Parallel()

	inquiry := Decision{
		Action:        ActionInquiry,
		CourseName:    []string{"Course C2"},
		OriginalQuery: "Tell me about Course C2",
	}

	tests := []struct {
		name        string
		reply       string
		wantID      string
		wantDetails string
	}{
		{
			name:        "model picks a record",
			reply:       `{"course_information":{"course_id":"C2","description":"Made up"},"additional_details":"Popular with juniors."}`,
			wantID:      "C2",
			wantDetails: "Popular with juniors.",
		},
		{
			name:   "unknown course id",
			reply:  `{"course_information":{"course_id":"ZZZ"}}`,
			wantID: "C1",
		},
		{
			name:   "malformed",
			reply:  `not json`,
			wantID: "C1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			retriever := &stubRetriever{candidates: candidates("C1", "C2", "C3", "C4", "C5")}
			gen := newScripted().reply("inquire", tt.reply)

			draft, err := NewResponders(gen, retriever, 10).Inquire(context.Background(), "s1", inquiry)
			require.NoError(t, err)

			payload, ok := draft.(*InquiryPayload)
			require.True(t, ok, "got %T", draft)
			info := payload.CourseInformation
			assert.Equal(t, tt.wantID, info.CourseID)
			assert.Equal(t, "All about "+tt.wantID, info.Description, "facts come from the catalog")
			assert.Equal(t, [2]int{3, 3}, info.Credits)
			assert.Equal(t, "Fall", info.TypicallyOffered)
			assert.NotNil(t, info.Prerequisites)
			assert.Len(t, payload.RelatedCourses, maxRelatedCourses)
			assert.NotContains(t, payload.RelatedCourses, "INFO-I "+tt.wantID+" Course "+tt.wantID)
			assert.Equal(t, tt.wantDetails, payload.AdditionalDetails)
			assert.Equal(t, []string{"Course C2"}, retriever.lastGoal())
		})
	}
}

func TestInquire_NoCandidates(t *testing.T) {
	t.Parallel()

	draft, err := NewResponders(newScripted(), &stubRetriever{}, 10).Inquire(context.Background(), "s1",
		Decision{Action: ActionInquiry, CourseName: []string{"Quantum Basket Weaving"}})
	require.NoError(t, err)
	assert.Equal(t, KindApology, draft.Kind())
	assert.Contains(t, draft.Summary(), "Quantum Basket Weaving")
}

func TestClarify(t *testing.T) {
	t.Parallel()

	t.Run("model question", func(t *testing.T) {
		t.Parallel()
		gen := newScripted().reply("clarify", `{"clarification_question":" What career are you curious about? ","possible_intents":["Career guidance",""]}`)
		draft := NewResponders(gen, nil, 10).Clarify(context.Background(), "I'm so lost")

		payload := draft.(*ClarificationPayload)
		assert.Equal(t, "What career are you curious about?", payload.ClarificationQuestion)
		assert.Equal(t, []string{"Career guidance"}, payload.PossibleIntents)
	})

	for name, gen := range map[string]genai.TextGenerator{
		"gateway error":  newScripted().fail("clarify", errGateway),
		"empty question": newScripted().reply("clarify", `{"clarification_question":"  "}`),
		"no generator":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			draft := NewResponders(gen, nil, 10).Clarify(context.Background(), "hmm")
			assert.Equal(t, genericClarification(), draft)
		})
	}
}

func TestShorten(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", shorten("  short ", 10))
	assert.Equal(t, "one two...", shorten("one two three", 9))
	assert.Equal(t, "課程介...", shorten("課程介紹", 3))
}
