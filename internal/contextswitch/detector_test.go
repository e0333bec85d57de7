package contextswitch

import (
	"context"
	"testing"

	"travel-assistant/internal/cascade"
	"travel-assistant/internal/models"

	"github.com/stretchr/testify/assert"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, fields map[string]interface{})  {}
func (nopLogger) Warn(msg string, fields map[string]interface{})  {}
func (nopLogger) Error(msg string, fields map[string]interface{}) {}
func (n nopLogger) With(fields map[string]interface{}) cascade.Logger {
	return n
}

func patternOnlyDetector() *Detector {
	c := cascade.New(nopLogger{}, []cascade.Strategy{cascade.NewPatternStage()})
	return NewDetector(c)
}

type stubExtractor struct {
	results map[string]*models.ExtractionResult
}

func (s stubExtractor) EntitiesFound(ctx context.Context, memo *cascade.Memo, text string) (*models.ExtractionResult, bool) {
	er, ok := s.results[text]
	if !ok {
		return &models.ExtractionResult{}, false
	}
	return er, true
}

const pending = "flights from NYC to Tokyo in March"

func TestIsContextSwitch_ConsentTokenIsNotASwitch(t *testing.T) {
	d := patternOnlyDetector()
	assert.False(t, d.IsContextSwitch(context.Background(), cascade.NewMemo(), "yes", pending))
}

func TestIsContextSwitch_NewLocationIsASwitch(t *testing.T) {
	d := patternOnlyDetector()
	dec := d.Decide(context.Background(), cascade.NewMemo(), "what about hotels in Rome", pending)

	assert.True(t, dec.Switch)
	assert.Equal(t, "entities", dec.Stage)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		current   string
		wantSw    bool
		wantStage string
	}{
		{"same text", "  Flights from NYC to Tokyo in MARCH ", false, "equal"},
		{"short no", "nope", false, "consent_token"},
		{"same place new month", "what about Tokyo in April", false, "entities"},
		{"unrelated question", "how do I renew my passport", true, "tokens"},
		{"related question", "what flights leave earliest", false, "tokens"},
		{"plain statement", "hmm let me think", true, "entities"},
		{"entity-free redirect", "book a hotel instead", true, "entities"},
	}
	d := patternOnlyDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := d.Decide(context.Background(), cascade.NewMemo(), tt.current, pending)
			assert.Equal(t, tt.wantSw, dec.Switch)
			assert.Equal(t, tt.wantStage, dec.Stage)
		})
	}
}

func TestDecide_ExtractorFailureFallsBackToTokens(t *testing.T) {
	d := NewDetector(stubExtractor{})

	dec := d.Decide(context.Background(), cascade.NewMemo(), "where can I surf in winter", "museums in Vienna")
	assert.True(t, dec.Switch)
	assert.Equal(t, "tokens", dec.Stage)
}

func TestDecide_TypeOverlapKeepsContinuation(t *testing.T) {
	d := NewDetector(stubExtractor{results: map[string]*models.ExtractionResult{
		"make it under $500": {Money: []models.Span{{Text: "$500"}}},
		"hotels in Lisbon for $300 in May": {
			Locations: []models.Span{{Text: "Lisbon"}},
			Money:     []models.Span{{Text: "$300"}},
			Dates:     []models.Span{{Text: "May"}},
		},
	}})

	dec := d.Decide(context.Background(), cascade.NewMemo(), "make it under $500", "hotels in Lisbon for $300 in May")
	assert.False(t, dec.Switch)
	assert.InDelta(t, 1.0/3.0, dec.Ratio, 0.001)
	assert.Equal(t, "continuation", dec.Record().Outcome)
}

func TestDecide_NoEntitiesOnEitherSideFallsThrough(t *testing.T) {
	d := patternOnlyDetector()
	dec := d.Decide(context.Background(), cascade.NewMemo(), "hmm let me think", "plan a trip")

	assert.False(t, dec.Switch)
	assert.Equal(t, "default", dec.Stage)
}

func TestDecide_EmptyCurrentAgainstPendingEntities(t *testing.T) {
	d := NewDetector(stubExtractor{results: map[string]*models.ExtractionResult{
		"book a hotel instead": {},
		pending: {
			Locations: []models.Span{{Text: "NYC"}, {Text: "Tokyo"}},
			Dates:     []models.Span{{Text: "March"}},
		},
	}})

	dec := d.Decide(context.Background(), cascade.NewMemo(), "book a hotel instead", pending)
	assert.True(t, dec.Switch)
	assert.Equal(t, "entities", dec.Stage)
	assert.Zero(t, dec.Ratio)
}
