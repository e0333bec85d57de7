package models

import "strings"

// Intent is what the user wants done this turn.
type Intent string

const (
	IntentWeather      Intent = "weather"
	IntentDestinations Intent = "destinations"
	IntentPacking      Intent = "packing"
	IntentAttractions  Intent = "attractions"
	IntentPolicy       Intent = "policy"
	IntentFlights      Intent = "flights"
	IntentUnknown      Intent = "unknown"
	IntentWebSearch    Intent = "web_search"
	IntentSystem       Intent = "system"
)

var knownIntents = map[Intent]bool{
	IntentWeather:      true,
	IntentDestinations: true,
	IntentPacking:      true,
	IntentAttractions:  true,
	IntentPolicy:       true,
	IntentFlights:      true,
	IntentUnknown:      true,
	IntentWebSearch:    true,
	IntentSystem:       true,
}

// ParseIntent maps a free-form label to an Intent. Unrecognised labels become
// IntentUnknown.
func ParseIntent(s string) Intent {
	i := Intent(strings.ToLower(strings.TrimSpace(s)))
	if knownIntents[i] {
		return i
	}
	return IntentUnknown
}

func (i Intent) Valid() bool {
	return knownIntents[i]
}

// ContentType is the coarse classification of a message.
type ContentType string

const (
	ContentTravel     ContentType = "travel"
	ContentBudget     ContentType = "budget"
	ContentUnrelated  ContentType = "unrelated"
	ContentRefinement ContentType = "refinement"
	ContentSystem     ContentType = "system"
)

func ParseContentType(s string) ContentType {
	switch ct := ContentType(strings.ToLower(strings.TrimSpace(s))); ct {
	case ContentTravel, ContentBudget, ContentUnrelated, ContentRefinement, ContentSystem:
		return ct
	default:
		return ""
	}
}
