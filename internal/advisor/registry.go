package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/garyellow/course-advisor-go/internal/errors"
	"github.com/garyellow/course-advisor-go/internal/storage"
)

// Registry defaults.
const (
	DefaultSessionIdleTTL    = 30 * time.Minute
	DefaultSessionMaxEntries = 10000
)

// acquireAttempts bounds how often Acquire re-resolves a session that was
// evicted while the caller waited for it.
const acquireAttempts = 3

// Session is the in-memory state of one conversation.
//
// A turn owns the session between Registry.Acquire and Release; turns on
// the same session never interleave. The data fields have their own lock
// so listings do not wait for a running turn.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	turn chan struct{}
	now  func() time.Time

	mu      sync.RWMutex
	title   string
	history []Utterance
	state   State
	evicted bool

	lastActive atomic.Int64 // unix nanoseconds
}

func newSession(id, userID string, createdAt time.Time, now func() time.Time) *Session {
	s := &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: createdAt,
		turn:      make(chan struct{}, 1),
		now:       now,
		state:     StateTerminal,
	}
	s.lastActive.Store(createdAt.UnixNano())
	return s
}

// NewSessionID returns "session_{userID}_{8 alphanumerics}".
func NewSessionID(userID string) string {
	return fmt.Sprintf("session_%s_%s", userID, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Release ends the turn started by Registry.Acquire.
func (s *Session) Release() {
	s.touch(s.now())
	<-s.turn
}

// tryLock acquires the turn slot without waiting.
func (s *Session) tryLock() bool {
	select {
	case s.turn <- struct{}{}:
		return true
	default:
		return false
	}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Utterance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.history)
}

// Title returns the session title, empty until the first turn completes.
func (s *Session) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

// State returns the state the last or current turn is in.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastActive returns when the session was last used.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.lastActive.Store(now.UnixNano())
}

// record appends one turn. title is kept only if the session has none.
func (s *Session) record(user, assistant Utterance, title string) {
	s.mu.Lock()
	s.history = append(s.history, user, assistant)
	if s.title == "" && title != "" {
		s.title = title
	}
	s.mu.Unlock()
}

func (s *Session) isEvicted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evicted
}

func (s *Session) summary() storage.SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := storage.SessionSummary{
		ChatSession: storage.ChatSession{
			SessionID:  s.ID,
			UserID:     s.UserID,
			Title:      s.title,
			CreatedAt:  s.CreatedAt,
			LastActive: s.LastActive(),
		},
		MessageCount: len(s.history),
	}
	for _, u := range s.history {
		if u.Role == storage.RoleUser {
			sum.FirstMessage = u.Text
			break
		}
	}
	return sum
}

// SessionStore is the persistence used to rehydrate evicted sessions.
type SessionStore interface {
	GetChatSession(ctx context.Context, sessionID string) (*storage.ChatSession, error)
	GetChatMessages(ctx context.Context, sessionID string) ([]storage.ChatMessage, error)
}

// RegistryRecorder receives registry gauges. *metrics.Metrics satisfies it.
type RegistryRecorder interface {
	SetActiveSessions(count int)
	RecordSessionEvictions(count int)
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Store rehydrates sessions that are no longer in memory. Optional.
	Store SessionStore
	// IdleTTL evicts sessions unused for longer. Defaults to DefaultSessionIdleTTL.
	IdleTTL time.Duration
	// MaxEntries bounds the number of sessions in memory. Defaults to DefaultSessionMaxEntries.
	MaxEntries int
	// Recorder is optional.
	Recorder RegistryRecorder
}

// Registry is the process-wide map of live sessions.
//
// It is created at startup and lives until shutdown. Each user has one
// current session, created on their first message; creation is
// first-writer-wins so concurrent first messages share one session.
// Sessions leave memory only through eviction (idle TTL or the entry
// bound); persisted history is never deleted, and an evicted session is
// rehydrated from the store when its id is used again.
type Registry struct {
	store      SessionStore
	recorder   RegistryRecorder
	idleTTL    time.Duration
	maxEntries int
	now        func() time.Time

	flight singleflight.Group

	mu      sync.Mutex
	byID    map[string]*Session
	current map[string]*Session // user id -> most recently used session
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultSessionIdleTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultSessionMaxEntries
	}
	return &Registry{
		store:      cfg.Store,
		recorder:   cfg.Recorder,
		idleTTL:    cfg.IdleTTL,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
		byID:       make(map[string]*Session),
		current:    make(map[string]*Session),
	}
}

// Acquire resolves the session for a turn and waits until no other turn
// holds it. The caller must call Release on the returned session.
//
// An explicit session id that is unknown, belongs to another user, or
// cannot be rehydrated falls back to the user's current session.
// Without a session id the user's current session is used, and created
// if the user has none. NewSession always starts a fresh session.
func (r *Registry) Acquire(ctx context.Context, req TurnRequest) (*Session, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, apperrors.NewValidationError("user_id", "must not be empty")
	}

	sessionID, fresh := req.SessionID, req.NewSession
	for range acquireAttempts {
		sess := r.resolve(ctx, req.UserID, sessionID, fresh)
		select {
		case sess.turn <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if !sess.isEvicted() {
			sess.touch(r.now())
			return sess, nil
		}
		sess.Release()
		sessionID, fresh = sess.ID, false
	}
	return nil, fmt.Errorf("%w: %s was evicted repeatedly", apperrors.ErrSessionNotFound, sessionID)
}

func (r *Registry) resolve(ctx context.Context, userID, sessionID string, fresh bool) *Session {
	if fresh {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.addLocked(newSession(NewSessionID(userID), userID, r.now(), r.now))
	}

	if sessionID != "" {
		sess, err := r.lookup(ctx, userID, sessionID)
		if err == nil {
			return sess
		}
		level := slog.LevelInfo
		if !errors.Is(err, apperrors.ErrSessionNotFound) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "Session unavailable, using current session",
			"requested_session_id", sessionID,
			"error", err)
	}
	return r.currentFor(userID)
}

// currentFor returns the user's current session, creating it if needed.
func (r *Registry) currentFor(userID string) *Session {
	r.mu.Lock()
	if sess, ok := r.current[userID]; ok {
		r.mu.Unlock()
		return sess
	}
	r.mu.Unlock()

	v, _, _ := r.flight.Do("user:"+userID, func() (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sess, ok := r.current[userID]; ok {
			return sess, nil
		}
		sess := r.addLocked(newSession(NewSessionID(userID), userID, r.now(), r.now))
		slog.Debug("Session created", "session_id", sess.ID, "user_id", userID)
		return sess, nil
	})
	return v.(*Session)
}

// lookup finds sessionID in memory or rehydrates it, and makes it the
// user's current session.
func (r *Registry) lookup(ctx context.Context, userID, sessionID string) (*Session, error) {
	r.mu.Lock()
	if sess, ok := r.byID[sessionID]; ok {
		defer r.mu.Unlock()
		if sess.UserID != userID {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrSessionNotFound, sessionID)
		}
		r.current[userID] = sess
		return sess, nil
	}
	r.mu.Unlock()

	v, err, _ := r.flight.Do("session:"+sessionID, func() (any, error) {
		return r.rehydrate(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	loaded := v.(*Session)
	if loaded.UserID != userID {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSessionNotFound, sessionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.byID[sessionID]; ok {
		r.current[userID] = sess
		return sess, nil
	}
	return r.addLocked(loaded), nil
}

func (r *Registry) rehydrate(ctx context.Context, sessionID string) (*Session, error) {
	if r.store == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSessionNotFound, sessionID)
	}
	row, err := r.store.GetChatSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSessionNotFound, sessionID)
	}
	messages, err := r.store.GetChatMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages of %s: %w", sessionID, err)
	}

	sess := newSession(row.SessionID, row.UserID, row.CreatedAt, r.now)
	sess.title = row.Title
	sess.history = make([]Utterance, 0, len(messages))
	for _, m := range messages {
		sess.history = append(sess.history, Utterance{Role: m.Role, Text: m.Content, Timestamp: m.CreatedAt})
	}
	sess.touch(r.now())

	slog.DebugContext(ctx, "Session rehydrated",
		"session_id", sessionID,
		"messages", len(messages))
	return sess, nil
}

// addLocked registers sess as its user's current session and enforces
// the entry bound. r.mu must be held.
func (r *Registry) addLocked(sess *Session) *Session {
	r.byID[sess.ID] = sess
	r.current[sess.UserID] = sess

	if over := len(r.byID) - r.maxEntries; over > 0 {
		victims := make([]*Session, 0, len(r.byID))
		for _, s := range r.byID {
			if s != sess {
				victims = append(victims, s)
			}
		}
		slices.SortFunc(victims, func(a, b *Session) int {
			return a.LastActive().Compare(b.LastActive())
		})
		evicted := 0
		for _, s := range victims {
			if evicted == over {
				break
			}
			if r.evictLocked(s) {
				evicted++
			}
		}
		r.recordEvictions(evicted)
	}
	r.recordActive()
	return sess
}

// evictLocked removes s unless a turn holds it. r.mu must be held.
func (r *Registry) evictLocked(s *Session) bool {
	if !s.tryLock() {
		return false
	}
	s.mu.Lock()
	s.evicted = true
	s.mu.Unlock()
	<-s.turn

	delete(r.byID, s.ID)
	if r.current[s.UserID] == s {
		delete(r.current, s.UserID)
	}
	return true
}

// EvictIdle removes sessions idle for longer than the TTL and returns how
// many were removed. Sessions with a running turn are kept.
func (r *Registry) EvictIdle() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for _, s := range r.byID {
		if s.LastActive().Before(cutoff) && r.evictLocked(s) {
			evicted++
		}
	}
	r.recordEvictions(evicted)
	r.recordActive()
	return evicted
}

// RunJanitor evicts idle sessions every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(); n > 0 {
				slog.DebugContext(ctx, "Idle sessions evicted", "count", n)
			}
		}
	}
}

// Sessions lists the in-memory sessions of userID.
func (r *Registry) Sessions(userID string) []storage.SessionSummary {
	r.mu.Lock()
	sessions := make([]*Session, 0, 4)
	for _, s := range r.byID {
		if s.UserID == userID {
			sessions = append(sessions, s)
		}
	}
	r.mu.Unlock()

	out := make([]storage.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.summary())
	}
	return out
}

// Get returns the in-memory session with id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id]
}

// Len returns the number of sessions in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *Registry) recordActive() {
	if r.recorder != nil {
		r.recorder.SetActiveSessions(len(r.byID))
	}
}

func (r *Registry) recordEvictions(n int) {
	if r.recorder != nil && n > 0 {
		r.recorder.RecordSessionEvictions(n)
	}
}
