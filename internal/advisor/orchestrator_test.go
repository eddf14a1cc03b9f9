package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/garyellow/course-advisor-go/internal/errors"
	"github.com/garyellow/course-advisor-go/internal/genai"
	"github.com/garyellow/course-advisor-go/internal/retrieval"
	"github.com/garyellow/course-advisor-go/internal/storage"
)

func happyGenerator() *scriptedGenerator {
	return newScripted().
		reply("classify", uxDecision).
		reply("recommend", uxPicks).
		reply("supervise", "Here is your plan.").
		reply("title", "UX Career Plan")
}

func runTurn(t *testing.T, o *Orchestrator, reg *Registry, req TurnRequest) *TurnResult {
	t.Helper()
	sess, err := reg.Acquire(context.Background(), req)
	require.NoError(t, err)
	defer sess.Release()
	return o.Run(context.Background(), sess, req.Query)
}

func TestRun_RecommendationTurn(t *testing.T) {
	t.Parallel()

	store := newMemoryTurnStore()
	rec := newTurnRecorder()
	gen := happyGenerator()
	o := newTestPipeline(gen, &stubRetriever{candidates: candidates("C1", "C2")}, store, rec)
	reg := NewRegistry(RegistryConfig{Store: store})

	res := runTurn(t, o, reg, TurnRequest{UserID: "s1", Query: "I want to become a UX Designer"})

	assert.False(t, res.Failed)
	assert.Equal(t, ActionRecommendation, res.Action)
	assert.Equal(t, "Here is your plan.", res.FinalText)
	assert.Equal(t, "UX Career Plan", res.Title)
	assert.Equal(t, KindRecommendation, res.PayloadKind)
	require.IsType(t, &RecommendationPayload{}, res.Payload)

	sess := reg.Get(res.SessionID)
	require.NotNil(t, sess)
	assert.Equal(t, StateTerminal, sess.State())
	history := sess.History()
	require.Len(t, history, 2)
	assert.Equal(t, storage.RoleUser, history[0].Role)
	assert.Equal(t, "I want to become a UX Designer", history[0].Text)
	assert.Equal(t, storage.RoleAssistant, history[1].Role)
	assert.Equal(t, "Here is your plan.", history[1].Text)

	saved := store.saved(res.SessionID)
	require.Len(t, saved, 2)
	var meta map[string]any
	require.NoError(t, json.Unmarshal([]byte(saved[1].Metadata), &meta))
	assert.Equal(t, string(ActionRecommendation), meta["action"])
	assert.Equal(t, KindRecommendation, meta["payload_kind"])
	assert.Contains(t, meta, "payload")
	assert.Empty(t, saved[0].Metadata)

	row, err := store.GetChatSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "UX Career Plan", row.Title)
	assert.Equal(t, 1, rec.turnsFor("recommendation/success"))
}

func TestRun_TitleOnlyOnFirstTurn(t *testing.T) {
	t.Parallel()

	store := newMemoryTurnStore()
	gen := happyGenerator().
		reply("clarify", `{"clarification_question":"Anything else?","possible_intents":[]}`)
	o := newTestPipeline(gen, &stubRetriever{candidates: candidates("C1")}, store, nil)
	reg := NewRegistry(RegistryConfig{Store: store})

	first := runTurn(t, o, reg, TurnRequest{UserID: "s1", Query: "I want to become a UX Designer"})
	gen.reply("classify", `{"action":"clarification_needed"}`).reply("title", "Should Not Be Used")
	second := runTurn(t, o, reg, TurnRequest{UserID: "s1", Query: "hmm"})

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, 1, gen.callCount("title"))
	assert.Equal(t, "UX Career Plan", second.Title)
	assert.Equal(t, ActionClarification, second.Action)
	assert.Len(t, store.saved(first.SessionID), 4)
	assert.Contains(t, gen.lastPrompt("supervise"), "Student: I want to become a UX Designer")
}

func TestRun_StageFailureApologises(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		recommend func(genai.Request) (string, error)
	}{
		{"gateway exhausted", func(genai.Request) (string, error) { return "", errGateway }},
		{"panic", func(genai.Request) (string, error) { panic("responder bug") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newMemoryTurnStore()
			rec := newTurnRecorder()
			var reported atomic.Int32
			gen := happyGenerator().on("recommend", tt.recommend)
			o := NewOrchestrator(OrchestratorConfig{
				Classifier:  NewClassifier(gen),
				Responders:  NewResponders(gen, &stubRetriever{candidates: candidates("C1")}, 10),
				Supervisor:  NewSupervisor(gen),
				Titles:      NewTitleGenerator(gen),
				Store:       store,
				Recorder:    rec,
				ReportError: func(context.Context, error) { reported.Add(1) },
			})
			reg := NewRegistry(RegistryConfig{Store: store})

			res := runTurn(t, o, reg, TurnRequest{UserID: "s1", Query: "I want to become a UX Designer"})

			assert.True(t, res.Failed)
			assert.Equal(t, ApologyText, res.FinalText)
			assert.Nil(t, res.Payload)
			assert.Equal(t, "I want to become...", res.Title)
			assert.Equal(t, 1, rec.failuresFor(StateRecommendation.String()))
			assert.Equal(t, 1, rec.turnsFor("recommendation/failed"))
			assert.Equal(t, int32(1), reported.Load())
			assert.Zero(t, gen.callCount("supervise"))

			saved := store.saved(res.SessionID)
			require.Len(t, saved, 2)
			assert.Equal(t, ApologyText, saved[1].Content)
			assert.Contains(t, saved[1].Metadata, `"failed":true`)

			// The session stays usable.
			gen.on("recommend", func(genai.Request) (string, error) { return uxPicks, nil })
			next := runTurn(t, o, reg, TurnRequest{UserID: "s1", Query: "I want to become a UX Designer"})
			assert.False(t, next.Failed)
			assert.Equal(t, res.SessionID, next.SessionID)
			assert.Len(t, reg.Get(res.SessionID).History(), 4)
		})
	}
}

func TestRun_CallerTimeoutFailsTurn(t *testing.T) {
	t.Parallel()

	store := newMemoryTurnStore()
	var reported atomic.Int32
	gen := happyGenerator()
	o := NewOrchestrator(OrchestratorConfig{
		Classifier:  NewClassifier(gen),
		Responders:  NewResponders(gen, &stubRetriever{candidates: candidates("C1")}, 10),
		Supervisor:  NewSupervisor(gen),
		Titles:      NewTitleGenerator(gen),
		Store:       store,
		ReportError: func(context.Context, error) { reported.Add(1) },
	})
	reg := NewRegistry(RegistryConfig{})
	sess, err := reg.Acquire(context.Background(), TurnRequest{UserID: "s1"})
	require.NoError(t, err)
	defer sess.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := o.Run(ctx, sess, "I want to become a UX Designer")

	assert.True(t, res.Failed)
	assert.Equal(t, ApologyText, res.FinalText)
	assert.Zero(t, gen.callCount("classify"))
	assert.Zero(t, reported.Load(), "caller cancellation is not reported")
	assert.Len(t, store.saved(sess.ID), 2, "persisted despite the cancelled context")
}

func TestRun_PersistFailureKeepsReply(t *testing.T) {
	t.Parallel()

	store := newMemoryTurnStore()
	store.err = assert.AnError
	rec := newTurnRecorder()
	o := newTestPipeline(happyGenerator(), &stubRetriever{candidates: candidates("C1")}, store, rec)
	reg := NewRegistry(RegistryConfig{})

	res := runTurn(t, o, reg, TurnRequest{UserID: "s1", Query: "I want to become a UX Designer"})

	assert.False(t, res.Failed)
	assert.Equal(t, "Here is your plan.", res.FinalText)
	assert.Equal(t, 1, rec.failuresFor("persist"))
	assert.Len(t, reg.Get(res.SessionID).History(), 2)
}

// Two fresh sessions with the same input classify and rank identically.
func TestRun_IndependentSessionsAreDeterministic(t *testing.T) {
	t.Parallel()

	store := newMemoryTurnStore()
	o := newTestPipeline(happyGenerator(), &stubRetriever{candidates: candidates("C1", "C2", "C3", "C4", "C5", "C6")}, store, nil)
	reg := NewRegistry(RegistryConfig{Store: store})

	req := TurnRequest{UserID: "s1", Query: "I want to become a UX Designer", NewSession: true}
	a := runTurn(t, o, reg, req)
	b := runTurn(t, o, reg, req)

	assert.NotEqual(t, a.SessionID, b.SessionID)
	assert.Equal(t, a.Action, b.Action)
	assert.Equal(t, a.Payload, b.Payload)
	assert.Equal(t, a.Title, b.Title)
	assert.Len(t, reg.Get(a.SessionID).History(), 2)
	assert.Len(t, reg.Get(b.SessionID).History(), 2)
}

// An embedding gateway answering 500 degrades the recommendation to an
// apology; the turn still completes and is persisted.
func TestRun_EmbeddingOutageEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var embedCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		embedCalls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	db, err := storage.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.SaveStudentsBatch(ctx, []*storage.Student{
		{UserID: "s1", UpcomingSemester: storage.SemesterFall, RemainingCredits: 6},
	}))
	require.NoError(t, db.SaveCoursesBatch(ctx, []*storage.Course{
		{CourseID: "X", CourseName: "INFO-I 101", MinCredits: 3, MaxCredits: 4, OfferedSemester: "Fall Term", Title: "Intro"},
	}))

	embedder := genai.NewEmbeddingClient(genai.EmbeddingConfig{
		URL:          srv.URL,
		Dimensions:   3,
		MaxAttempts:  2,
		Timeout:      2 * time.Second,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	})
	retriever := retrieval.NewRetriever(embedder, db, nil, 10)

	_, err = retriever.Retrieve(ctx, "s1", []string{"UX Designer"}, 10)
	require.ErrorIs(t, err, apperrors.ErrEmbeddingUnavailable)

	gen := happyGenerator().fail("supervise", errGateway)
	o := newTestPipeline(gen, retriever, db, nil)
	reg := NewRegistry(RegistryConfig{Store: db})

	res := runTurn(t, o, reg, TurnRequest{UserID: "s1", Query: "I want to become a UX Designer"})

	assert.False(t, res.Failed)
	assert.Equal(t, ActionRecommendation, res.Action)
	require.Equal(t, KindApology, res.PayloadKind)
	assert.Equal(t, ReasonEmbeddingFailed, res.Payload.(*ApologyPayload).Reason)
	assert.Equal(t, res.Payload.Summary(), res.FinalText)
	assert.Zero(t, gen.callCount("recommend"))

	msgs, err := db.GetChatMessages(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "I want to become a UX Designer", msgs[0].Content)
	assert.Equal(t, res.FinalText, msgs[1].Content)

	row, err := db.GetChatSession(ctx, res.SessionID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "UX Career Plan", row.Title)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	states := []State{StateDecision, StateRecommendation, StateInquiry, StateClarification,
		StateSupervisor, StateTitle, StatePersist, StateTerminal}
	seen := make(map[string]bool)
	for _, s := range states {
		name := s.String()
		assert.NotEqual(t, "unknown", name)
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
	assert.Equal(t, "unknown", State(99).String())
}
