package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"travel-assistant/internal/cascade"
	"travel-assistant/internal/common/validation"
	"travel-assistant/internal/models"
	"travel-assistant/internal/slots"
)

var ErrLowConfidenceRoute = errors.New("LOW_CONFIDENCE_ROUTE")

var routeSchema = validation.MustCompile(map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"next", "slots", "confidence"},
	"properties": map[string]interface{}{
		"next": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{
				"weather", "destinations", "packing", "attractions", "policy",
				"flights", "unknown", "web_search", "system",
			},
		},
		"slots": map[string]interface{}{
			"type":                 "object",
			"additionalProperties": map[string]interface{}{"type": "string"},
		},
		"confidence": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
	},
})

const routePrompt = `You route messages for a travel assistant.
Known trip details: %s
Previous intent: %s
User message: %q

Pick "next" from: weather, destinations, packing, attractions, policy, flights, web_search, system, unknown.
Extract slots using only these keys when the message states them: city, destinationCity, originCity, country, dates, month, startDate, endDate, duration, season, travelerProfile, travelers, children, budget.
Use the real place name; leave a slot out rather than guessing.
Respond only with JSON: {"next": "...", "slots": {...}, "confidence": 0.0-1.0}`

// LLMRouter asks the LLM for an intent and slot candidates and validates the
// answer against a JSON schema.
type LLMRouter struct {
	llm LLM
}

func NewLLMRouter(llm LLM) *LLMRouter {
	return &LLMRouter{llm: llm}
}

func (r *LLMRouter) Route(ctx context.Context, message string, state *models.ThreadState) (*models.RouteResult, error) {
	known, err := json.Marshal(state.Slots)
	if err != nil {
		return nil, err
	}
	last := string(state.LastIntent)
	if last == "" {
		last = "none"
	}

	raw, err := r.llm.Complete(ctx, fmt.Sprintf(routePrompt, known, last, message), models.CompletionOptions{
		MaxTokens:   200,
		Temperature: 0.1,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}

	var out models.RouteResult
	if err := routeSchema.DecodeJSON(validation.CleanJSON(raw), &out); err != nil {
		return nil, err
	}
	if out.Confidence < cascade.Low {
		return nil, fmt.Errorf("%w: %.2f", ErrLowConfidenceRoute, out.Confidence)
	}
	return &out, nil
}

var (
	originRe      = regexp.MustCompile(`(?i:\bfrom)\s+(\p{Lu}[\p{L}'-]+(?:\s+\p{Lu}[\p{L}'-]+){0,2})`)
	familyRe      = regexp.MustCompile(`(?i)\b(family|kids|children|toddlers?|baby)\b`)
	travelersRe   = regexp.MustCompile(`(?i)\b(?:family|group|party) of (\d+)\b|\b(\d+)\s+(?:people|adults|travell?ers|persons)\b`)
	coupleRe      = regexp.MustCompile(`(?i)\b(couple|honeymoon|my (wife|husband|partner))\b`)
	soloRe        = regexp.MustCompile(`(?i)\b(solo|alone|by myself)\b`)
	monthOnlyRe   = regexp.MustCompile(`(?i)^(january|february|march|april|may|june|july|august|september|october|november|december)$`)
	seasonOnlyRe  = regexp.MustCompile(`(?i)^(summer|winter|spring|autumn|fall)$`)
	seasonMention = regexp.MustCompile(`(?i)\b(summer|winter|spring|autumn|fall)\b`)
)

// slotsFromEntities builds slot candidates from cascade output when the
// router is unavailable; the router also uses it to fill gaps.
func slotsFromEntities(message string, intent models.Intent, er *models.ExtractionResult) map[string]string {
	out := make(map[string]string)

	origin := ""
	if m := originRe.FindStringSubmatch(message); m != nil {
		origin = strings.TrimSpace(m[1])
	}
	for _, loc := range er.Locations {
		if origin != "" && slots.Equal(loc.Text, origin) {
			if intent == models.IntentFlights {
				out[slots.OriginCity] = loc.Text
			}
			continue
		}
		if out[slots.City] == "" {
			out[slots.City] = loc.Text
		}
	}

	if len(er.Dates) == 1 {
		v := er.Dates[0].Text
		switch {
		case monthOnlyRe.MatchString(v):
			out[slots.Month] = v
			out[slots.Dates] = v
		default:
			out[slots.Dates] = v
		}
	} else if v := joinSpans(er.Dates); v != "" {
		out[slots.Dates] = v
	}
	if v := joinSpans(er.Durations); v != "" {
		out[slots.Duration] = v
	}
	if len(er.Money) > 0 {
		out[slots.Budget] = er.Money[0].Text
	}
	if m := seasonMention.FindString(message); m != "" && seasonOnlyRe.MatchString(m) {
		out[slots.Season] = strings.ToLower(m)
	}

	switch {
	case familyRe.MatchString(message):
		out[slots.TravelerProfile] = "family"
	case coupleRe.MatchString(message):
		out[slots.TravelerProfile] = "couple"
	case soloRe.MatchString(message):
		out[slots.TravelerProfile] = "solo"
	}
	if m := travelersRe.FindStringSubmatch(message); m != nil {
		if m[1] != "" {
			out[slots.Travelers] = m[1]
		} else {
			out[slots.Travelers] = m[2]
		}
	}
	return out
}

func joinSpans(spans []models.Span) string {
	parts := make([]string, 0, len(spans))
	for _, s := range spans {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, ", ")
}
