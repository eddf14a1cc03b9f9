package advisor

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/garyellow/course-advisor-go/internal/ctxutil"
	apperrors "github.com/garyellow/course-advisor-go/internal/errors"
	"github.com/garyellow/course-advisor-go/internal/storage"
)

// MaxQueryLength is the longest accepted utterance, in runes.
const MaxQueryLength = 4000

// DefaultTurnTimeout bounds one turn, including waiting for the session.
const DefaultTurnTimeout = 120 * time.Second

// HistoryStore reads persisted conversations. *storage.DB satisfies it.
type HistoryStore interface {
	ListChatSessions(ctx context.Context, userID string) ([]storage.SessionSummary, error)
	GetChatMessages(ctx context.Context, sessionID string) ([]storage.ChatMessage, error)
}

// Advisor is the turn API: it resolves the session, runs the state
// machine and answers history queries.
type Advisor struct {
	registry     *Registry
	orchestrator *Orchestrator
	history      HistoryStore
	turnTimeout  time.Duration
}

// New creates an Advisor. history may be nil.
func New(registry *Registry, orchestrator *Orchestrator, history HistoryStore, turnTimeout time.Duration) *Advisor {
	if turnTimeout <= 0 {
		turnTimeout = DefaultTurnTimeout
	}
	return &Advisor{
		registry:     registry,
		orchestrator: orchestrator,
		history:      history,
		turnTimeout:  turnTimeout,
	}
}

// Chat runs one turn. It returns an error only for invalid input or when
// the session stays busy past the turn timeout; pipeline failures are
// reported through TurnResult.Failed.
func (a *Advisor) Chat(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Query = strings.TrimSpace(req.Query)
	if req.UserID == "" {
		return nil, apperrors.NewValidationError("user_id", "must not be empty")
	}
	if req.Query == "" {
		return nil, apperrors.NewValidationError("query", "must not be empty")
	}
	if n := utf8.RuneCountInString(req.Query); n > MaxQueryLength {
		return nil, apperrors.NewValidationError("query", fmt.Sprintf("is %d characters, limit is %d", n, MaxQueryLength))
	}

	ctx = ctxutil.WithUserID(ctx, req.UserID)
	ctx, cancel := context.WithTimeout(ctx, a.turnTimeout)
	defer cancel()

	sess, err := a.registry.Acquire(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer sess.Release()

	return a.orchestrator.Run(ctx, sess, req.Query), nil
}

// Sessions lists a user's sessions, merging the in-memory registry with
// persisted history, most recently active first.
func (a *Advisor) Sessions(ctx context.Context, userID string) ([]storage.SessionSummary, error) {
	merged := make(map[string]storage.SessionSummary)
	if a.history != nil {
		persisted, err := a.history.ListChatSessions(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		for _, s := range persisted {
			merged[s.SessionID] = s
		}
	}

	for _, live := range a.registry.Sessions(userID) {
		stored, ok := merged[live.SessionID]
		if !ok {
			merged[live.SessionID] = live
			continue
		}
		if live.Title != "" {
			stored.Title = live.Title
		}
		if live.LastActive.After(stored.LastActive) {
			stored.LastActive = live.LastActive
		}
		stored.MessageCount = max(stored.MessageCount, live.MessageCount)
		if stored.FirstMessage == "" {
			stored.FirstMessage = live.FirstMessage
		}
		merged[live.SessionID] = stored
	}

	out := make([]storage.SessionSummary, 0, len(merged))
	for _, s := range merged {
		out = append(out, s)
	}
	slices.SortFunc(out, func(x, y storage.SessionSummary) int {
		if c := y.LastActive.Compare(x.LastActive); c != 0 {
			return c
		}
		return cmp.Compare(x.SessionID, y.SessionID)
	})
	return out, nil
}

// Messages returns the persisted messages of a session, falling back to
// the in-memory history when nothing is persisted.
func (a *Advisor) Messages(ctx context.Context, sessionID string) ([]storage.ChatMessage, error) {
	if a.history != nil {
		msgs, err := a.history.GetChatMessages(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("get messages: %w", err)
		}
		if len(msgs) > 0 {
			return msgs, nil
		}
	}

	sess := a.registry.Get(sessionID)
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSessionNotFound, sessionID)
	}
	history := sess.History()
	msgs := make([]storage.ChatMessage, 0, len(history))
	for _, u := range history {
		msgs = append(msgs, storage.ChatMessage{
			SessionID: sess.ID,
			UserID:    sess.UserID,
			Role:      u.Role,
			Content:   u.Text,
			CreatedAt: u.Timestamp,
		})
	}
	return msgs, nil
}

// Registry returns the session registry.
func (a *Advisor) Registry() *Registry {
	return a.registry
}
