package advisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/garyellow/course-advisor-go/internal/errors"
	"github.com/garyellow/course-advisor-go/internal/genai"
	"github.com/garyellow/course-advisor-go/internal/retrieval"
	"github.com/garyellow/course-advisor-go/internal/storage"
)

// scriptedGenerator answers each operation with a fixed script.
type scriptedGenerator struct {
	mu      sync.Mutex
	scripts map[string]func(genai.Request) (string, error)
	calls   map[string]int
	prompts map[string][]string
}

func newScripted() *scriptedGenerator {
	return &scriptedGenerator{
		scripts: make(map[string]func(genai.Request) (string, error)),
		calls:   make(map[string]int),
		prompts: make(map[string][]string),
	}
}

func (g *scriptedGenerator) reply(op, text string) *scriptedGenerator {
	return g.on(op, func(genai.Request) (string, error) { return text, nil })
}

func (g *scriptedGenerator) fail(op string, err error) *scriptedGenerator {
	return g.on(op, func(genai.Request) (string, error) { return "", err })
}

func (g *scriptedGenerator) on(op string, fn func(genai.Request) (string, error)) *scriptedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[op] = fn
	return g
}

func (g *scriptedGenerator) Generate(_ context.Context, req genai.Request) (*genai.Response, error) {
	g.mu.Lock()
	fn, ok := g.scripts[req.Operation]
	g.calls[req.Operation]++
	g.prompts[req.Operation] = append(g.prompts[req.Operation], req.Prompt)
	g.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: no script for %s", apperrors.ErrGatewayUnavailable, req.Operation)
	}
	text, err := fn(req)
	if err != nil {
		return nil, err
	}
	return &genai.Response{Text: text, Provider: genai.ProviderOpenAI, Model: "scripted"}, nil
}

func (g *scriptedGenerator) Provider() genai.Provider { return genai.ProviderOpenAI }

func (g *scriptedGenerator) Close() error { return nil }

func (g *scriptedGenerator) callCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *scriptedGenerator) lastPrompt(op string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.prompts[op]
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

var errGateway = fmt.Errorf("%w: all providers failed", apperrors.ErrGatewayUnavailable)

// stubRetriever returns fixed candidates and records the goal it saw.
type stubRetriever struct {
	mu         sync.Mutex
	candidates []retrieval.CandidateCourse
	err        error
	goals      [][]string
}

func (r *stubRetriever) Retrieve(_ context.Context, _ string, goal []string, _ int) ([]retrieval.CandidateCourse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.goals = append(r.goals, goal)
	return r.candidates, r.err
}

func (r *stubRetriever) lastGoal() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.goals) == 0 {
		return nil
	}
	return r.goals[len(r.goals)-1]
}

func candidate(id string, similarity float64) retrieval.CandidateCourse {
	return retrieval.CandidateCourse{
		CourseID:        id,
		Name:            "INFO-I " + id,
		Department:      "INFO",
		CreditRange:     [2]int{3, 3},
		Title:           "Course " + id,
		Description:     "All about " + id,
		Prerequisites:   []string{},
		OfferedSemester: "Fall",
		Similarity:      similarity,
	}
}

func candidates(ids ...string) []retrieval.CandidateCourse {
	out := make([]retrieval.CandidateCourse, 0, len(ids))
	for i, id := range ids {
		out = append(out, candidate(id, 0.9-float64(i)*0.05))
	}
	return out
}

// memoryTurnStore records saved turns.
type memoryTurnStore struct {
	mu       sync.Mutex
	sessions map[string]storage.ChatSession
	messages map[string][]storage.ChatMessage
	err      error
}

func newMemoryTurnStore() *memoryTurnStore {
	return &memoryTurnStore{
		sessions: make(map[string]storage.ChatSession),
		messages: make(map[string][]storage.ChatMessage),
	}
}

func (s *memoryTurnStore) SaveTurn(_ context.Context, session *storage.ChatSession, messages []storage.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	row := *session
	if prev, ok := s.sessions[row.SessionID]; ok && row.Title == "" {
		row.Title = prev.Title
	}
	s.sessions[row.SessionID] = row
	for _, m := range messages {
		m.SessionID = session.SessionID
		m.UserID = session.UserID
		s.messages[session.SessionID] = append(s.messages[session.SessionID], m)
	}
	return nil
}

func (s *memoryTurnStore) GetChatSession(_ context.Context, id string) (*storage.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *memoryTurnStore) GetChatMessages(_ context.Context, id string) ([]storage.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.ChatMessage(nil), s.messages[id]...), nil
}

func (s *memoryTurnStore) saved(id string) []storage.ChatMessage {
	msgs, _ := s.GetChatMessages(context.Background(), id)
	return msgs
}

// turnRecorder counts metrics calls.
type turnRecorder struct {
	mu       sync.Mutex
	turns    map[string]int
	failures map[string]int
}

func newTurnRecorder() *turnRecorder {
	return &turnRecorder{turns: make(map[string]int), failures: make(map[string]int)}
}

func (r *turnRecorder) RecordTurn(action, status string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns[action+"/"+status]++
}

func (r *turnRecorder) RecordStageFailure(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[stage]++
}

func (r *turnRecorder) failuresFor(stage string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[stage]
}

func (r *turnRecorder) turnsFor(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turns[key]
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	uxDecision = `{"action":"recommendation","career_goal":["UX Designer"],"course_name":[],"course_work":["User Interface Design"],"original_query":"I want to become a UX Designer","reasoning":"explicit career goal"}`
	uxPicks    = `{"recommended_courses":[{"course_id":"C1","course_title":"x","skill_development":["Prototyping"],"career_alignment":"core","relevance_reasoning":"builds UX skills"}],"recommendation_strategy":"Start with design fundamentals."}`
)

// newTestPipeline wires an orchestrator around gen and retriever.
func newTestPipeline(gen genai.TextGenerator, retriever CandidateRetriever, store TurnStore, rec TurnRecorder) *Orchestrator {
	return NewOrchestrator(OrchestratorConfig{
		Classifier: NewClassifier(gen),
		Responders: NewResponders(gen, retriever, 10),
		Supervisor: NewSupervisor(gen),
		Titles:     NewTitleGenerator(gen),
		Store:      store,
		Recorder:   rec,
	})
}
