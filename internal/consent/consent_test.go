package consent

import (
	"context"
	"errors"
	"testing"

	"travel-assistant/internal/cascade"
	"travel-assistant/internal/contextswitch"
	"travel-assistant/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestLogger struct {
	t *testing.T
}

func (l *TestLogger) Info(msg string, fields map[string]interface{})  { l.t.Logf("INFO: %s %v", msg, fields) }
func (l *TestLogger) Warn(msg string, fields map[string]interface{})  { l.t.Logf("WARN: %s %v", msg, fields) }
func (l *TestLogger) Error(msg string, fields map[string]interface{}) { l.t.Logf("ERROR: %s %v", msg, fields) }
func (l *TestLogger) With(fields map[string]interface{}) Logger       { return l }

type stubDetector struct {
	decision contextswitch.Decision
}

func (s stubDetector) Decide(ctx context.Context, memo *cascade.Memo, current, pending string) contextswitch.Decision {
	return s.decision
}

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string, opts models.CompletionOptions) (string, error) {
	f.calls++
	return f.reply, f.err
}

func awaiting(kind models.ConsentKind, query string) *models.ThreadState {
	st := models.NewThreadState()
	Request(st, kind, query)
	return st
}

func TestRequest_Exclusive(t *testing.T) {
	st := models.NewThreadState()

	Request(st, models.ConsentWebSearch, "q1")
	prompt := Request(st, models.ConsentDeepResearch, "q2")

	assert.True(t, st.Consent.Active())
	assert.Equal(t, models.ConsentDeepResearch, st.Consent.Kind)
	assert.Equal(t, "q2", st.Consent.PendingQuery)
	assert.Equal(t, Prompt(models.ConsentDeepResearch), prompt)
}

func TestPick_Priority(t *testing.T) {
	assert.Equal(t, models.ConsentDeepResearch,
		Pick(models.ConsentWebAfterRAG, models.ConsentDeepResearch, models.ConsentWebSearch))
	assert.Equal(t, models.ConsentWebSearch, Pick(models.ConsentWebAfterRAG, models.ConsentWebSearch))
	assert.Equal(t, models.ConsentNone, Pick())
}

func TestHandle_TokenAnswers(t *testing.T) {
	tests := []struct {
		name        string
		kind        models.ConsentKind
		message     string
		want        Outcome
		wantReroute bool
		stillActive bool
	}{
		{"yes approves", models.ConsentWebSearch, "yes", OutcomeApproved, false, false},
		{"sure approves", models.ConsentDeepResearch, "Sure!", OutcomeApproved, false, false},
		{"no declines web search without reroute", models.ConsentWebSearch, "no", OutcomeDeclined, false, false},
		{"skip declines deep research with reroute", models.ConsentDeepResearch, "skip", OutcomeDeclined, true, false},
		{"cancel declines rag follow-up with reroute", models.ConsentWebAfterRAG, "cancel", OutcomeDeclined, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{}
			p := NewProtocol(stubDetector{}, llm, &TestLogger{t: t})
			st := awaiting(tt.kind, "pending question")

			res := p.Handle(context.Background(), cascade.NewMemo(), st, tt.message)

			assert.Equal(t, tt.want, res.Outcome)
			assert.Equal(t, tt.wantReroute, res.Reroute)
			assert.Equal(t, "pending question", res.PendingQuery)
			assert.Equal(t, tt.stillActive, st.Consent.Active())
			assert.Equal(t, 0, llm.calls)
		})
	}
}

func TestHandle_AmbiguousUsesLLM(t *testing.T) {
	llm := &fakeLLM{reply: "```json\n{\"answer\":\"yes\"}\n```"}
	p := NewProtocol(stubDetector{}, llm, &TestLogger{t: t})
	st := awaiting(models.ConsentWebSearch, "visa rules for Brazil")

	res := p.Handle(context.Background(), cascade.NewMemo(), st, "I guess that would be helpful")

	assert.Equal(t, OutcomeApproved, res.Outcome)
	assert.Equal(t, 1, llm.calls)
	assert.Equal(t, "llm", res.Decision.Detail)
}

func TestHandle_LLMErrorIsUnclear(t *testing.T) {
	llm := &fakeLLM{err: errors.New("deadline exceeded")}
	p := NewProtocol(stubDetector{}, llm, &TestLogger{t: t})
	st := awaiting(models.ConsentDeepResearch, "family trip to Rome under $2000")
	before := st.Consent

	res := p.Handle(context.Background(), cascade.NewMemo(), st, "hmm, depends on the cost")

	assert.Equal(t, OutcomeUnclear, res.Outcome)
	assert.Equal(t, before, st.Consent)
	assert.Contains(t, res.Reply, Prompt(models.ConsentDeepResearch))
}

func TestHandle_ContextSwitchClearsConsent(t *testing.T) {
	llm := &fakeLLM{}
	p := NewProtocol(stubDetector{decision: contextswitch.Decision{Switch: true, Stage: "entities"}}, llm, &TestLogger{t: t})
	st := awaiting(models.ConsentWebSearch, "flights from NYC to Tokyo in March")

	res := p.Handle(context.Background(), cascade.NewMemo(), st, "what about hotels in Rome")

	require.Equal(t, OutcomeSwitched, res.Outcome)
	assert.False(t, st.Consent.Active())
	assert.Equal(t, models.ConsentNone, st.Consent.Kind)
	assert.Equal(t, 0, llm.calls)
}

func TestHandle_NotAwaiting(t *testing.T) {
	p := NewProtocol(stubDetector{}, nil, &TestLogger{t: t})

	res := p.Handle(context.Background(), cascade.NewMemo(), models.NewThreadState(), "yes")
	assert.Equal(t, OutcomeSwitched, res.Outcome)
}
