// Package dispatcher runs one conversation turn end to end: early gates,
// pending consent, classification, soft signals, routing, slot merge and
// the intent handlers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"travel-assistant/internal/cascade"
	apperrors "travel-assistant/internal/common/errors"
	"travel-assistant/internal/common/metrics"
	"travel-assistant/internal/common/observability"
	"travel-assistant/internal/consent"
	"travel-assistant/internal/models"
)

var ErrMissingDependency = errors.New("MISSING_DEPENDENCY")

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Store is the part of session.Store a turn needs.
type Store interface {
	Load(ctx context.Context, threadID string) (*models.ThreadState, error)
	Save(ctx context.Context, threadID string, state *models.ThreadState) error
}

// Classifier is satisfied by *cascade.Cascade.
type Classifier interface {
	Classify(ctx context.Context, memo *cascade.Memo, kind cascade.Kind, text string) *cascade.Result
}

type ConsentHandler interface {
	Handle(ctx context.Context, memo *cascade.Memo, state *models.ThreadState, message string) consent.Result
}

// Router picks the next intent and slot patch for a message.
type Router interface {
	Route(ctx context.Context, message string, state *models.ThreadState) (*models.RouteResult, error)
}

// Clarifier phrases the question for missing slots.
type Clarifier interface {
	Ask(ctx context.Context, intent models.Intent, missing []string, slots map[string]string) (string, error)
}

type LLM interface {
	Complete(ctx context.Context, prompt string, opts models.CompletionOptions) (string, error)
}

type WebSearcher interface {
	Search(ctx context.Context, query string) (*models.SearchResult, error)
}

type Retriever interface {
	Query(ctx context.Context, question, corpusHint string) (*models.RAGAnswer, error)
}

type Tools interface {
	Weather(ctx context.Context, city, dates string) (*models.ToolResult, error)
	Attractions(ctx context.Context, city, profile string) (*models.ToolResult, error)
	Flights(ctx context.Context, origin, destination, dates string) (*models.ToolResult, error)
	CountryFacts(ctx context.Context, country string) (*models.ToolResult, error)
}

// ReceiptRecorder archives and publishes receipts. Implementations must not
// fail the turn.
type ReceiptRecorder interface {
	Record(ctx context.Context, threadID, turnID string, intent models.Intent, receipts models.Receipts) models.Receipts
}

// Deps are the collaborators a Dispatcher needs. Receipts and Observability
// may be nil; a nil Clarifier falls back to templates.
type Deps struct {
	Store     Store
	Cascade   Classifier
	Consent   ConsentHandler
	Router    Router
	Clarifier Clarifier
	LLM       LLM
	Web       WebSearcher
	Retriever Retriever
	Tools     Tools

	// Optional.
	Receipts      ReceiptRecorder
	Observability *observability.Observability
}

// Dispatcher runs one conversation turn end to end.
type Dispatcher struct {
	store     Store
	cascade   Classifier
	consent   ConsentHandler
	router    Router
	clarifier Clarifier
	llm       LLM
	web       WebSearcher
	retriever Retriever
	tools     Tools
	receipts  ReceiptRecorder
	obs       *observability.Observability
	now       func() time.Time
	logger    Logger
}

// New validates deps and builds a Dispatcher.
func New(deps Deps, log Logger) (*Dispatcher, error) {
	required := []struct {
		name    string
		missing bool
	}{
		{"store", deps.Store == nil},
		{"cascade", deps.Cascade == nil},
		{"consent", deps.Consent == nil},
		{"router", deps.Router == nil},
		{"llm", deps.LLM == nil},
		{"web", deps.Web == nil},
		{"retriever", deps.Retriever == nil},
		{"tools", deps.Tools == nil},
	}
	for _, r := range required {
		if r.missing {
			return nil, fmt.Errorf("%w: %s", ErrMissingDependency, r.name)
		}
	}

	clarifier := deps.Clarifier
	if clarifier == nil {
		clarifier = TemplateClarifier{}
	}
	obs := deps.Observability
	if obs == nil {
		obs = &observability.Observability{}
	}

	return &Dispatcher{
		store:     deps.Store,
		cascade:   deps.Cascade,
		consent:   deps.Consent,
		router:    deps.Router,
		clarifier: clarifier,
		llm:       deps.LLM,
		web:       deps.Web,
		retriever: deps.Retriever,
		tools:     deps.Tools,
		receipts:  deps.Receipts,
		obs:       obs,
		now:       time.Now,
		logger:    log.With(map[string]interface{}{"component": "dispatcher"}),
	}, nil
}

// ProcessTurn answers one user message on threadID. It returns an error only
// for an empty threadID; every collaborator failure degrades to a reply.
// Callers must serialize turns per thread (see ThreadLocks).
func (d *Dispatcher) ProcessTurn(ctx context.Context, threadID, message string) (*models.TurnResult, error) {
	if threadID == "" {
		return nil, apperrors.NewInvalidTurnInputError("threadId is required")
	}

	start := d.now()
	turnID := uuid.New().String()
	log := d.logger.With(map[string]interface{}{
		"threadId": threadID,
		"turnId":   turnID,
	})

	ctx, span := d.obs.StartSpan(ctx, "dispatcher.process_turn",
		attribute.String("threadId", threadID),
		attribute.String("turnId", turnID),
	)
	defer span.End()

	state, err := d.store.Load(ctx, threadID)
	if err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("session_store").Inc()
		log.Error("failed to load thread state", map[string]interface{}{"error": err.Error()})
		d.finishMetrics(ctx, start, outcomeError)
		return &models.TurnResult{Done: true, Reply: apologyReply}, nil
	}

	t := &turn{
		id:       turnID,
		threadID: threadID,
		message:  message,
		state:    state,
		memo:     cascade.NewMemo(),
		logger:   log,
	}

	out := d.run(ctx, t)
	span.SetAttributes(attribute.String("outcome", out.outcome))

	if out.outcome != outcomeExplain {
		receipts := models.Receipts{Facts: t.facts, Decisions: t.decisions, Reply: out.reply}
		if d.receipts != nil {
			receipts = d.receipts.Record(ctx, threadID, turnID, state.LastIntent, receipts)
		}
		state.LastReceipts = receipts
	}
	state.LastUserMessage = message

	if err := d.store.Save(ctx, threadID, state); err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("session_store").Inc()
		log.Error("failed to save thread state", map[string]interface{}{"error": err.Error()})
	}

	d.finishMetrics(ctx, start, out.outcome)
	log.Info("turn processed", map[string]interface{}{
		"outcome":  out.outcome,
		"intent":   state.LastIntent,
		"duration": d.now().Sub(start).Milliseconds(),
	})

	return &models.TurnResult{Done: true, Reply: out.reply, Citations: out.citations}, nil
}

func (d *Dispatcher) finishMetrics(ctx context.Context, start time.Time, outcome string) {
	elapsed := d.now().Sub(start)
	metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	metrics.TurnDuration.Observe(elapsed.Seconds())
	d.obs.RecordTurn(ctx, elapsed, outcome)
}

// run walks the turn state machine. Collaborator errors are handled where
// they happen, so run always produces a reply.
func (d *Dispatcher) run(ctx context.Context, t *turn) outcome {
	if cascade.IsBlank(t.message) {
		t.decide("gate", "blank", 0, "")
		return outcome{reply: blankReply, outcome: outcomeGate}
	}

	if isReset(t.message) {
		t.state.Reset()
		t.decide("gate", "reset", 0, "")
		return outcome{reply: resetReply, outcome: outcomeReset}
	}

	if t.state.Consent.Active() {
		if out, done := d.handleConsent(ctx, t); done {
			return out
		}
	}

	if isExplainRequest(t.message) {
		return d.explain(t)
	}

	return d.dispatch(ctx, t, t.message, turnOptions{})
}

func (d *Dispatcher) handleConsent(ctx context.Context, t *turn) (outcome, bool) {
	res := d.consent.Handle(ctx, t.memo, t.state, t.message)
	t.decisions = append(t.decisions, res.Switch.Record(), res.Decision)

	switch res.Outcome {
	case consent.OutcomeApproved:
		return d.executePending(ctx, t, res.Kind, res.PendingQuery), true

	case consent.OutcomeDeclined:
		if !res.Reroute {
			return outcome{reply: res.Reply, outcome: outcomeConsentDeclined}, true
		}
		opts := turnOptions{
			skipDeepResearch: res.Kind == models.ConsentDeepResearch,
			skipWebFallback:  res.Kind == models.ConsentWebAfterRAG,
		}
		out := d.dispatch(ctx, t, res.PendingQuery, opts)
		out.reply = joinParagraphs(res.Reply, out.reply)
		return out, true

	case consent.OutcomeUnclear:
		return outcome{reply: res.Reply, outcome: outcomeConsentPrompt}, true
	}

	t.logger.Info("context switch during pending consent", map[string]interface{}{
		"kind":  res.Kind,
		"stage": res.Switch.Stage,
	})
	return outcome{}, false
}

func (d *Dispatcher) executePending(ctx context.Context, t *turn, kind models.ConsentKind, query string) outcome {
	if kind == models.ConsentDeepResearch {
		t.state.LastIntent = models.IntentDestinations
		return d.deepResearch(ctx, t, query)
	}
	t.state.LastIntent = models.IntentWebSearch
	return d.webSearch(ctx, t, query)
}
