package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-assistant/internal/cascade"
	"travel-assistant/internal/models"
	"travel-assistant/internal/slots"
)

// scriptedStage answers only for the texts it was given and stays silent
// otherwise, letting the pattern stage handle the rest.
type scriptedStage struct {
	results map[cascade.Kind]map[string]*cascade.Result
}

func (s scriptedStage) Name() cascade.StageName { return cascade.StageClassifier }
func (s scriptedStage) Threshold() float64      { return cascade.Medium }

func (s scriptedStage) Attempt(ctx context.Context, kind cascade.Kind, text string) (*cascade.Result, error) {
	return s.results[kind][text], nil
}

func hasDecision(st *models.ThreadState, stage, outcome string) bool {
	for _, d := range st.LastReceipts.Decisions {
		if d.Stage == stage && d.Outcome == outcome {
			return true
		}
	}
	return false
}

const parisInJuly = "weather in Paris in July"

func TestProcessTurn_IntentResolution(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		wantIntent models.Intent
		wantTool   string
		wantRule   string
	}{
		{
			name:       "unknown falls back to last intent",
			message:    "with my kids",
			wantIntent: models.IntentWeather,
			wantTool:   "weather",
			wantRule:   "last_intent_fallback",
		},
		{
			name:       "short refinement overrides a new intent",
			message:    "a family-friendly trip with my kids",
			wantIntent: models.IntentWeather,
			wantTool:   "weather",
			wantRule:   "refinement_override",
		},
		{
			name:       "new city is not a refinement",
			message:    "a family trip with my kids to Rome",
			wantIntent: models.IntentDestinations,
		},
		{
			name:       "attractions request is not a refinement",
			message:    "kid-friendly museums for my kids",
			wantIntent: models.IntentAttractions,
			wantTool:   "attractions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.turn(t, "intent", parisInJuly)
			require.Len(t, h.tools.calls, 1)

			h.turn(t, "intent", tt.message)

			st := h.store.state("intent")
			assert.Equal(t, tt.wantIntent, st.LastIntent)
			if tt.wantTool != "" {
				require.Len(t, h.tools.calls, 2)
				assert.Equal(t, tt.wantTool, h.tools.calls[1].tool)
				assert.Equal(t, "Paris", h.tools.calls[1].args[0])
			} else {
				assert.Len(t, h.tools.calls, 1)
			}
			if tt.wantRule != "" {
				assert.True(t, hasDecision(st, "intent", tt.wantRule), "expected %s decision", tt.wantRule)
			} else {
				assert.False(t, hasDecision(st, "intent", "refinement_override"))
			}
		})
	}
}

func TestProcessTurn_ConflictingMentionsAskToDisambiguate(t *testing.T) {
	tests := []struct {
		name    string
		message string
		reply   string
	}{
		{"two cities", "weather in Paris or in Rome", "You mentioned Paris or Rome. Which one should I focus on?"},
		{"two seasons", "what to pack for summer or winter in Oslo", "You mentioned summer or winter. Which season are you planning to travel in?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			res := h.turn(t, "conflict", tt.message)

			assert.Equal(t, tt.reply, res.Reply)
			assert.Empty(t, h.tools.calls)
			assert.True(t, hasDecision(h.store.state("conflict"), "signals", "conflict"))
		})
	}
}

func TestProcessTurn_HighConfidenceCityOverridesConflict(t *testing.T) {
	const msg = "weather in Paris or Rome in July"
	stage := scriptedStage{results: map[cascade.Kind]map[string]*cascade.Result{
		cascade.KindEntities: {
			msg: {Confidence: 0.95, Entities: &models.ExtractionResult{
				Locations: []models.Span{{Text: "Paris", Score: 0.65}, {Text: "Rome", Score: 0.95}},
				Dates:     []models.Span{{Text: "July", Score: 0.9}},
			}},
		},
	}}
	h := newHarness(t, stage)
	h.turn(t, "override", parisInJuly)

	res := h.turn(t, "override", msg)

	assert.NotContains(t, res.Reply, "Which one")
	require.Len(t, h.tools.calls, 2)
	assert.Equal(t, []string{"Rome", "July"}, h.tools.calls[1].args)
	assert.Equal(t, "Rome", h.store.state("override").Slots[slots.City])
}

func TestProcessTurn_SystemGateLetsRefinementsThrough(t *testing.T) {
	const msg = "with my kids, what can you do"

	t.Run("system content is gated", func(t *testing.T) {
		h := newHarness(t)
		h.turn(t, "system", parisInJuly)

		res := h.turn(t, "system", msg)

		assert.Equal(t, identityReply, res.Reply)
		assert.Equal(t, models.IntentSystem, h.store.state("system").LastIntent)
	})

	t.Run("refinement content is not", func(t *testing.T) {
		stage := scriptedStage{results: map[cascade.Kind]map[string]*cascade.Result{
			cascade.KindContentType: {
				msg: {Label: string(models.ContentRefinement), Confidence: 0.95},
			},
		}}
		h := newHarness(t, stage)
		h.turn(t, "system", parisInJuly)

		res := h.turn(t, "system", msg)

		assert.NotEqual(t, identityReply, res.Reply)
		st := h.store.state("system")
		assert.Equal(t, models.IntentWeather, st.LastIntent)
		assert.True(t, hasDecision(st, "intent", "refinement_override"))
		require.Len(t, h.tools.calls, 2)
		assert.Equal(t, "weather", h.tools.calls[1].tool)
	})
}

func decisionIndex(st *models.ThreadState, stage, outcome string) int {
	for i, d := range st.LastReceipts.Decisions {
		if d.Stage == stage && d.Outcome == outcome {
			return i
		}
	}
	return -1
}

func TestProcessTurn_PendingConsentIsCheckedBeforeGates(t *testing.T) {
	tests := []struct {
		name    string
		message string
		reply   string
		gate    string
	}{
		{"system", "who are you?", identityReply, "system"},
		{"unrelated", "give me a cookie recipe", unrelatedReply, "unrelated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.turn(t, "order", complexQuery)
			require.True(t, h.store.state("order").Consent.Active())

			res := h.turn(t, "order", tt.message)

			assert.Equal(t, tt.reply, res.Reply)
			st := h.store.state("order")
			assert.False(t, st.Consent.Active())

			sw := decisionIndex(st, "context_switch.entities", "switch")
			gate := decisionIndex(st, "gate", tt.gate)
			require.NotEqual(t, -1, sw)
			require.NotEqual(t, -1, gate)
			assert.Less(t, sw, gate)
		})
	}
}
