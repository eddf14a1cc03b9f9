package advisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		utterance  string
		reply      string
		wantAction Action
		wantGoal   []string
		wantCourse []string
	}{
		{
			name:       "career goal",
			utterance:  "I want to become a UX Designer",
			reply:      uxDecision,
			wantAction: ActionRecommendation,
			wantGoal:   []string{"UX Designer"},
			wantCourse: []string{},
		},
		{
			name:       "playful message",
			utterance:  "lol I love beating my friends",
			reply:      `{"action":"clarification_needed","career_goal":[],"course_name":[],"course_work":[],"original_query":"lol I love beating my friends","reasoning":"playful"}`,
			wantAction: ActionClarification,
			wantGoal:   []string{},
			wantCourse: []string{},
		},
		{
			name:       "course inquiry in code fence",
			utterance:  "What is covered in Advanced Database Concepts?",
			reply:      "```json\n{\"action\":\"inquiry\",\"career_goal\":[],\"course_name\":[\"Advanced Database Concepts\"]}\n```",
			wantAction: ActionInquiry,
			wantGoal:   []string{},
			wantCourse: []string{"Advanced Database Concepts"},
		},
		{
			name:       "action case and whitespace",
			utterance:  "I'm switching to product management",
			reply:      `{"action":"  Recommendation ","career_goal":[" Product Manager ","product manager",""]}`,
			wantAction: ActionRecommendation,
			wantGoal:   []string{"Product Manager"},
			wantCourse: []string{},
		},
		{
			name:       "not JSON",
			utterance:  "I want to become a data scientist",
			reply:      "Sure! The user wants recommendations.",
			wantAction: ActionClarification,
			wantGoal:   []string{},
			wantCourse: []string{},
		},
		{
			name:       "unknown action",
			utterance:  "help",
			reply:      `{"action":"chitchat","career_goal":["Astronaut"]}`,
			wantAction: ActionClarification,
			wantGoal:   []string{},
			wantCourse: []string{},
		},
		{
			name:       "wrong field types",
			utterance:  "I want to become a nurse",
			reply:      `{"action":"recommendation","career_goal":"Nurse"}`,
			wantAction: ActionClarification,
			wantGoal:   []string{},
			wantCourse: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewClassifier(newScripted().reply("classify", tt.reply))

			d := c.Classify(context.Background(), tt.utterance)

			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantGoal, d.CareerGoal)
			assert.Equal(t, tt.wantCourse, d.CourseName)
			assert.Equal(t, tt.utterance, d.OriginalQuery)
		})
	}
}

func TestClassify_GatewayFailure(t *testing.T) {
	t.Parallel()

	for name, c := range map[string]*Classifier{
		"gateway error":  NewClassifier(newScripted().fail("classify", errGateway)),
		"no generator":   NewClassifier(nil),
		"missing script": NewClassifier(newScripted()),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			d := c.Classify(context.Background(), "I want to become a UX Designer")
			assert.Equal(t, ActionClarification, d.Action)
			assert.Empty(t, d.CareerGoal)
			assert.Empty(t, d.CourseName)
			assert.Empty(t, d.CourseWork)
		})
	}
}

func TestParseActionAndBranch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   Action
		ok     bool
		branch State
	}{
		{"recommendation", ActionRecommendation, true, StateRecommendation},
		{"INQUIRY", ActionInquiry, true, StateInquiry},
		{" clarification_needed\n", ActionClarification, true, StateClarification},
		{"clarification", "", false, StateClarification},
		{"", "", false, StateClarification},
	}
	for _, tt := range tests {
		got, ok := ParseAction(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.branch, branchFor(got), tt.in)
	}
}
