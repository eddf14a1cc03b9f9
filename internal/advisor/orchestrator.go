package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/garyellow/course-advisor-go/internal/ctxutil"
	apperrors "github.com/garyellow/course-advisor-go/internal/errors"
	"github.com/garyellow/course-advisor-go/internal/storage"
)

// DefaultPersistTimeout bounds the write of one turn.
const DefaultPersistTimeout = 10 * time.Second

// TurnStore persists completed turns. *storage.DB satisfies it.
type TurnStore interface {
	SaveTurn(ctx context.Context, session *storage.ChatSession, messages []storage.ChatMessage) error
}

// TurnRecorder receives turn metrics. *metrics.Metrics satisfies it.
type TurnRecorder interface {
	RecordTurn(action, status string, duration float64)
	RecordStageFailure(stage string)
}

// OrchestratorConfig wires the stages of a turn.
type OrchestratorConfig struct {
	Classifier *Classifier
	Responders *Responders
	Supervisor *Supervisor
	Titles     *TitleGenerator
	// Store is optional; without it turns live only in memory.
	Store TurnStore
	// Recorder is optional.
	Recorder TurnRecorder
	// ReportError receives unexpected turn failures, e.g. for Sentry. Optional.
	ReportError    func(ctx context.Context, err error)
	PersistTimeout time.Duration
}

// Orchestrator runs the per-turn state machine:
//
//	decision -> {recommendation|inquiry|clarification}_agent -> supervisor
//	         -> title_generation -> persist -> terminal
//
// Every turn starts at decision and runs to terminal. A failure inside a
// stage replaces the reply with ApologyText; the turn is still persisted.
type Orchestrator struct {
	classifier     *Classifier
	responders     *Responders
	supervisor     *Supervisor
	titles         *TitleGenerator
	store          TurnStore
	recorder       TurnRecorder
	reportError    func(ctx context.Context, err error)
	persistTimeout time.Duration
	now            func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	return &Orchestrator{
		classifier:     cfg.Classifier,
		responders:     cfg.Responders,
		supervisor:     cfg.Supervisor,
		titles:         cfg.Titles,
		store:          cfg.Store,
		recorder:       cfg.Recorder,
		reportError:    cfg.ReportError,
		persistTimeout: cfg.PersistTimeout,
		now:            time.Now,
	}
}

// turn is the state of one run of the machine.
type turn struct {
	session   *Session
	query     string
	history   []Utterance
	firstTurn bool
	startedAt time.Time

	state     State
	decision  Decision
	draft     Draft
	finalText string
	title     string
	failed    bool
}

// Run processes one utterance on sess. The caller must hold the session
// (Registry.Acquire). Run never fails: errors become a failed result.
func (o *Orchestrator) Run(ctx context.Context, sess *Session, query string) *TurnResult {
	ctx = ctxutil.WithSessionID(ctxutil.WithUserID(ctx, sess.UserID), sess.ID)
	t := &turn{
		session:   sess,
		query:     query,
		history:   sess.History(),
		startedAt: o.now(),
		state:     StateDecision,
	}
	t.firstTurn = len(t.history) == 0

	if err := o.execute(ctx, t); err != nil {
		o.fail(ctx, t, err)
	}

	o.setState(t, StatePersist)
	o.persist(ctx, t)
	o.setState(t, StateTerminal)

	status := "success"
	if t.failed {
		status = "failed"
	}
	action := string(t.decision.Action)
	if action == "" {
		action = "none"
	}
	if o.recorder != nil {
		o.recorder.RecordTurn(action, status, o.now().Sub(t.startedAt).Seconds())
	}

	slog.InfoContext(ctx, "Turn completed",
		"action", action,
		"failed", t.failed,
		"first_turn", t.firstTurn,
		"duration_ms", o.now().Sub(t.startedAt).Milliseconds())

	result := &TurnResult{
		FinalText: t.finalText,
		Payload:   t.draft,
		Title:     sess.Title(),
		SessionID: sess.ID,
		Action:    t.decision.Action,
		Failed:    t.failed,
	}
	if t.draft != nil {
		result.PayloadKind = t.draft.Kind()
	}
	return result
}

// execute advances t until it reaches persist. Panics inside a stage are
// recovered and returned as that stage's error.
func (o *Orchestrator) execute(ctx context.Context, t *turn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Turn stage panicked",
				"state", t.state.String(),
				"panic", r,
				"stack", string(debug.Stack()))
			err = apperrors.NewStageError(t.state.String(), fmt.Errorf("panic: %v", r))
		}
	}()

	for t.state != StatePersist {
		o.setState(t, t.state)
		if err := ctx.Err(); err != nil {
			return apperrors.NewStageError(t.state.String(), err)
		}
		if err := o.step(ctx, t); err != nil {
			return apperrors.NewStageError(t.state.String(), err)
		}
	}
	return nil
}

// step runs the current state and moves t to the next one.
func (o *Orchestrator) step(ctx context.Context, t *turn) error {
	switch t.state {
	case StateDecision:
		t.decision = o.classifier.Classify(ctx, t.query)
		t.state = branchFor(t.decision.Action)

	case StateRecommendation:
		draft, err := o.responders.Recommend(ctx, t.session.UserID, t.decision)
		if err != nil {
			return err
		}
		t.draft = draft
		t.state = StateSupervisor

	case StateInquiry:
		draft, err := o.responders.Inquire(ctx, t.session.UserID, t.decision)
		if err != nil {
			return err
		}
		t.draft = draft
		t.state = StateSupervisor

	case StateClarification:
		t.draft = o.responders.Clarify(ctx, t.query)
		t.state = StateSupervisor

	case StateSupervisor:
		t.finalText = o.supervisor.Compose(ctx, t.history, t.query, t.draft)
		t.state = StateTitle

	case StateTitle:
		if t.firstTurn {
			t.title = o.titles.Generate(ctx, t.query)
		}
		t.state = StatePersist

	case StatePersist, StateTerminal:
		return fmt.Errorf("state %s is not a stage", t.state)

	default:
		return fmt.Errorf("unknown state %d", int(t.state))
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, t *turn, err error) {
	t.failed = true
	t.draft = nil
	t.finalText = ApologyText
	if t.firstTurn && t.title == "" {
		t.title = leadingWords(t.query, 4)
	}

	stage := t.state.String()
	var stageErr *apperrors.StageError
	if errors.As(err, &stageErr) {
		stage = stageErr.Stage
	}
	if o.recorder != nil {
		o.recorder.RecordStageFailure(stage)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.WarnContext(ctx, "Turn abandoned by caller",
			"stage", stage,
			"error", err)
		return
	}
	slog.ErrorContext(ctx, "Turn failed",
		"stage", stage,
		"error", err)
	if o.reportError != nil {
		o.reportError(ctx, err)
	}
}

// turnMetadata is stored with the assistant message.
type turnMetadata struct {
	Action      Action `json:"action,omitempty"`
	Failed      bool   `json:"failed,omitempty"`
	PayloadKind string `json:"payload_kind,omitempty"`
	Payload     Draft  `json:"payload,omitempty"`
}

// persist appends both utterances to the session and writes the turn.
// The write uses a context detached from the caller so a failed or
// abandoned turn is still recorded.
func (o *Orchestrator) persist(ctx context.Context, t *turn) {
	now := o.now()
	user := Utterance{Role: storage.RoleUser, Text: t.query, Timestamp: t.startedAt}
	assistant := Utterance{Role: storage.RoleAssistant, Text: t.finalText, Timestamp: now}
	t.session.record(user, assistant, t.title)

	if o.store == nil {
		return
	}

	meta := turnMetadata{Action: t.decision.Action, Failed: t.failed, Payload: t.draft}
	if t.draft != nil {
		meta.PayloadKind = t.draft.Kind()
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		slog.WarnContext(ctx, "Failed to encode turn metadata", "error", err)
		metaJSON = nil
	}

	writeCtx, cancel := context.WithTimeout(ctxutil.PreserveTracing(ctx), o.persistTimeout)
	defer cancel()

	err = o.store.SaveTurn(writeCtx, &storage.ChatSession{
		SessionID:  t.session.ID,
		UserID:     t.session.UserID,
		Title:      t.title,
		CreatedAt:  t.session.CreatedAt,
		LastActive: now,
	}, []storage.ChatMessage{
		{Role: user.Role, Content: user.Text, CreatedAt: user.Timestamp},
		{Role: assistant.Role, Content: assistant.Text, Metadata: string(metaJSON), CreatedAt: assistant.Timestamp},
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to persist turn", "error", err)
		if o.recorder != nil {
			o.recorder.RecordStageFailure(StatePersist.String())
		}
		if o.reportError != nil {
			o.reportError(writeCtx, apperrors.NewStageError(StatePersist.String(), err))
		}
	}
}

func (o *Orchestrator) setState(t *turn, st State) {
	t.state = st
	t.session.setState(st)
}
