package consent

import (
	"context"
	"fmt"

	"travel-assistant/internal/cascade"
	"travel-assistant/internal/common/metrics"
	"travel-assistant/internal/common/validation"
	"travel-assistant/internal/contextswitch"
	"travel-assistant/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Outcome is how a reply to a pending consent was read.
type Outcome int

const (
	OutcomeUnclear Outcome = iota
	OutcomeApproved
	OutcomeDeclined
	OutcomeSwitched
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeDeclined:
		return "declined"
	case OutcomeSwitched:
		return "switched"
	default:
		return "unclear"
	}
}

var prompts = map[models.ConsentKind]string{
	models.ConsentWebSearch: "I don't have that in my travel knowledge base. " +
		"Would you like me to search the web for it? (yes/no)",
	models.ConsentDeepResearch: "This looks like a detailed request with several constraints. " +
		"Would you like me to do deeper research (web and travel knowledge base) before answering? " +
		"It may take a little longer. (yes/no)",
	models.ConsentWebAfterRAG: "I couldn't find this in our travel policies. " +
		"Want me to search the web instead? (yes/no)",
}

var acknowledgments = map[models.ConsentKind]string{
	models.ConsentWebSearch:    "No problem, I won't search the web. Is there anything else I can help with?",
	models.ConsentDeepResearch: "Okay, no deep research. Here's a quicker answer instead.",
	models.ConsentWebAfterRAG:  "Okay, I'll stick to what I already have.",
}

const unclearPrefix = "Sorry, I didn't catch that. "

// Prompt is the fixed yes/no question for kind.
func Prompt(kind models.ConsentKind) string {
	return prompts[kind]
}

// Request moves state to AWAITING(kind, query) and returns the prompt. Any
// consent already pending is replaced.
func Request(state *models.ThreadState, kind models.ConsentKind, query string) string {
	if prev := state.Consent; prev.Active() && prev.Kind != kind {
		metrics.ConsentTransitionsTotal.WithLabelValues(string(prev.Kind), "replaced").Inc()
	}
	state.Consent = models.ConsentState{Awaiting: true, Kind: kind, PendingQuery: query}
	metrics.ConsentTransitionsTotal.WithLabelValues(string(kind), "requested").Inc()
	return Prompt(kind)
}

// Clear moves state back to IDLE.
func Clear(state *models.ThreadState) {
	state.Consent = models.ConsentState{Kind: models.ConsentNone}
}

// Pick returns the highest-priority kind among candidates, or ConsentNone.
func Pick(candidates ...models.ConsentKind) models.ConsentKind {
	best := models.ConsentNone
	for _, k := range candidates {
		if k.Priority() > best.Priority() {
			best = k
		}
	}
	return best
}

// Reroutes reports whether a declined kind still gets a standard answer for
// its pending query.
func Reroutes(kind models.ConsentKind) bool {
	return kind == models.ConsentDeepResearch || kind == models.ConsentWebAfterRAG
}

// SwitchDetector is satisfied by *contextswitch.Detector.
type SwitchDetector interface {
	Decide(ctx context.Context, memo *cascade.Memo, current, pending string) contextswitch.Decision
}

type LLM interface {
	Complete(ctx context.Context, prompt string, opts models.CompletionOptions) (string, error)
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Result struct {
	Outcome      Outcome
	Kind         models.ConsentKind
	PendingQuery string
	// Reply is set for Declined and Unclear.
	Reply    string
	Reroute  bool
	Switch   contextswitch.Decision
	Decision models.Decision
}

var tracer = otel.Tracer("travel-assistant/consent")

var yesNoSchema = validation.MustCompile(map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"answer"},
	"properties": map[string]interface{}{
		"answer": map[string]interface{}{"type": "string", "enum": []interface{}{"yes", "no", "unclear"}},
	},
})

const yesNoPrompt = `The assistant asked the user: %q
The user replied: %q
Did the user agree? Respond only with JSON: {"answer": "yes" | "no" | "unclear"}.`

// Protocol interprets replies to a pending consent prompt.
type Protocol struct {
	detector SwitchDetector
	llm      LLM
	logger   Logger
}

// NewProtocol creates a consent protocol. llm may be nil, in which case free-form replies are unclear.
func NewProtocol(detector SwitchDetector, llm LLM, log Logger) *Protocol {
	return &Protocol{
		detector: detector,
		llm:      llm,
		logger:   log.With(map[string]interface{}{"component": "consent"}),
	}
}

// Handle interprets message as a reply to the pending consent in state and
// updates state accordingly. Unclear replies leave state untouched.
func (p *Protocol) Handle(ctx context.Context, memo *cascade.Memo, state *models.ThreadState, message string) Result {
	ctx, span := tracer.Start(ctx, "consent.handle")
	defer span.End()

	pending := state.Consent
	if !pending.Active() {
		return Result{Outcome: OutcomeSwitched}
	}
	span.SetAttributes(attribute.String("kind", string(pending.Kind)))

	res := Result{Kind: pending.Kind, PendingQuery: pending.PendingQuery}

	res.Switch = p.detector.Decide(ctx, memo, message, pending.PendingQuery)
	if res.Switch.Switch {
		Clear(state)
		res.Outcome = OutcomeSwitched
		return p.finish(span, res, "context_switch")
	}

	answer, ok := cascade.MatchConsentToken(message)
	source := "token"
	if !ok {
		answer = p.classify(ctx, pending.Kind, message)
		source = "llm"
	}

	switch answer {
	case cascade.AnswerYes:
		Clear(state)
		res.Outcome = OutcomeApproved
	case cascade.AnswerNo:
		Clear(state)
		res.Outcome = OutcomeDeclined
		res.Reply = acknowledgments[pending.Kind]
		res.Reroute = Reroutes(pending.Kind)
	default:
		res.Outcome = OutcomeUnclear
		res.Reply = unclearPrefix + Prompt(pending.Kind)
	}
	return p.finish(span, res, source)
}

func (p *Protocol) classify(ctx context.Context, kind models.ConsentKind, message string) cascade.Answer {
	if p.llm == nil {
		return cascade.AnswerUnclear
	}
	raw, err := p.llm.Complete(ctx, fmt.Sprintf(yesNoPrompt, Prompt(kind), message), models.CompletionOptions{
		MaxTokens: 20,
		JSON:      true,
	})
	if err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("llm").Inc()
		p.logger.Warn("yes/no classification failed", map[string]interface{}{"error": err.Error()})
		return cascade.AnswerUnclear
	}

	var out struct {
		Answer string `json:"answer"`
	}
	if err := yesNoSchema.DecodeJSON(validation.CleanJSON(raw), &out); err != nil {
		p.logger.Warn("yes/no classification returned invalid JSON", map[string]interface{}{"error": err.Error()})
		return cascade.AnswerUnclear
	}
	switch out.Answer {
	case "yes":
		return cascade.AnswerYes
	case "no":
		return cascade.AnswerNo
	}
	return cascade.AnswerUnclear
}

func (p *Protocol) finish(span trace.Span, res Result, source string) Result {
	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))
	metrics.ConsentTransitionsTotal.WithLabelValues(string(res.Kind), res.Outcome.String()).Inc()
	res.Decision = models.Decision{
		Stage:   "consent." + string(res.Kind),
		Outcome: res.Outcome.String(),
		Detail:  source,
	}
	p.logger.Info("consent reply handled", map[string]interface{}{
		"kind":    res.Kind,
		"outcome": res.Outcome.String(),
		"source":  source,
	})
	return res
}
