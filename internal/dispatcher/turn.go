package dispatcher

import (
	"strings"

	"travel-assistant/internal/cascade"
	"travel-assistant/internal/models"
)

const (
	outcomeAnswered        = "answered"
	outcomeGate            = "gate"
	outcomeClarify         = "clarify"
	outcomeDisambiguate    = "disambiguate"
	outcomeConsentPrompt   = "consent_prompt"
	outcomeConsentDeclined = "consent_declined"
	outcomeExplain         = "explain"
	outcomeReset           = "reset"
	outcomeError           = "error"
)

const (
	blankReply = "Please ask me a travel question, for example about the weather somewhere, " +
		"where to go, what to pack, things to see, flights or travel policies."
	unrelatedReply = "I'm a travel assistant, so I can only help with travel questions: " +
		"destinations, weather, packing, attractions, flights and travel policies."
	identityReply = "I'm a travel assistant. I can suggest destinations, check the weather, " +
		"help you pack, find attractions and flights, and answer travel policy questions."
	apologyReply = "Sorry, something went wrong on my side. Please try again in a moment."
	resetReply   = "Okay, let's start over. Where would you like to go?"

	languageWarning  = "Note: I work best in English, so parts of this answer may be less precise."
	dayTripNote      = "Since this sounds like a short trip, I won't ask for travel dates."
	budgetDisclaimer = "Prices change often, so treat any costs here as estimates."
)

// turn carries everything one ProcessTurn call accumulates. It is never
// shared between goroutines.
type turn struct {
	id       string
	threadID string
	message  string
	state    *models.ThreadState
	memo     *cascade.Memo
	logger   Logger

	facts     []models.Fact
	decisions []models.Decision
}

func (t *turn) decide(stage, result string, confidence float64, detail string) {
	t.decisions = append(t.decisions, models.Decision{
		Stage:      stage,
		Outcome:    result,
		Confidence: confidence,
		Detail:     detail,
	})
}

func (t *turn) addFacts(facts ...models.Fact) {
	t.facts = append(t.facts, facts...)
}

type outcome struct {
	reply     string
	citations []models.Citation
	outcome   string
}

// turnOptions suppress consent requests when a declined consent re-routes
// its pending query through normal dispatch.
type turnOptions struct {
	skipDeepResearch bool
	skipWebFallback  bool
}

func joinParagraphs(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func citationsToFacts(source string, cites []models.Citation) []models.Fact {
	facts := make([]models.Fact, 0, len(cites))
	for _, c := range cites {
		facts = append(facts, models.Fact{Source: source, Key: c.Title, Value: c.Snippet, URL: c.URL})
	}
	return facts
}

// mergeCitations concatenates lists, dropping repeated URLs.
func mergeCitations(lists ...[]models.Citation) []models.Citation {
	seen := make(map[string]bool)
	var out []models.Citation
	for _, list := range lists {
		for _, c := range list {
			if c.URL != "" && seen[c.URL] {
				continue
			}
			seen[c.URL] = true
			out = append(out, c)
		}
	}
	return out
}
