package dispatcher

import (
	"regexp"
	"sort"
	"strings"

	"travel-assistant/internal/cascade"
	"travel-assistant/internal/models"
	"travel-assistant/internal/slots"
)

// Constraint categories counted towards a complex query.
const (
	constraintBudget        = "budget"
	constraintGroup         = "group"
	constraintTransport     = "transport"
	constraintTime          = "time"
	constraintAccommodation = "accommodation"
)

const complexThreshold = 3

var (
	budgetRe        = regexp.MustCompile(`(?i)(\bcheap(est)?\b|\bbudget\b|\baffordable\b|\binexpensive\b|\bunder \$?\d+|\$\s?\d+|\b\d+\s?(usd|dollars|eur|euros|gbp)\b|\bhow much\b|\bcost\b)`)
	groupRe         = regexp.MustCompile(`(?i)\b(family|families|kids?|children|child|toddlers?|babies|baby|group of|friends|couple|honeymoon|\d+\s+(people|adults|travell?ers|persons|of us))\b`)
	transportRe     = regexp.MustCompile(`(?i)\b(flights?|fly|flying|train|rail|car rental|rent a car|bus|ferry|cruise|drive|driving|road trip)\b`)
	timeRe          = regexp.MustCompile(`(?i)\b(next (week|month|year|weekend)|this (week|month|weekend|summer|winter)|tomorrow|tonight|in (january|february|march|april|may|june|july|august|september|october|november|december)|\d+\s+(days?|nights?|weeks?))\b`)
	accommodationRe = regexp.MustCompile(`(?i)\b(hotels?|hostels?|airbnb|resorts?|accommodations?|lodging|stay(ing)?|b&b|villa)\b`)

	shortTimeframeRe = regexp.MustCompile(`(?i)\b(\d+|a few|few|couple of)\s+hours?\b|\bday trip\b|\bsame[- ]day\b|\bovernight\b|\bone day\b`)
	immediateRe      = regexp.MustCompile(`(?i)\b(today|tonight|this weekend|right now|this afternoon|this evening)\b`)
	specialRe        = regexp.MustCompile(`(?i)\bfor (a|an|my|our|the) (wedding|conference|funeral|interview|business (trip|meeting)|graduation|gala|festival)\b`)

	seasonRe = regexp.MustCompile(`(?i)\b(summer|winter|spring|autumn|fall)\b`)
)

type signals struct {
	language        string
	languageWarning bool
	shortTimeframe  bool
	immediate       bool
	special         bool
	budget          bool
	constraints     []string
	complex         bool
	cityConflict    []string
	seasonConflict  []string
	overrideCity    string
}

func (s signals) waiver() slots.DateWaiver {
	return slots.DateWaiver{
		ShortTimeframe: s.shortTimeframe,
		Immediate:      s.immediate,
		Special:        s.special,
	}
}

// disclaimers are prepended to a handler reply in this order.
func (s signals) disclaimers(datesWaived bool) []string {
	var out []string
	if s.languageWarning {
		out = append(out, languageWarning)
	}
	if datesWaived && s.shortTimeframe {
		out = append(out, dayTripNote)
	}
	if s.budget {
		out = append(out, budgetDisclaimer)
	}
	return out
}

func deriveSignals(message string, contentType models.ContentType, language string, entities *models.ExtractionResult, state *models.ThreadState) signals {
	s := signals{language: language}

	s.languageWarning = language != "" && language != "en"
	s.shortTimeframe = shortDuration(entities.Durations) || shortTimeframeRe.MatchString(message)
	s.immediate = immediateRe.MatchString(message)
	s.special = specialRe.MatchString(message)
	s.budget = contentType == models.ContentBudget || budgetRe.MatchString(message) || len(entities.Money) > 0

	s.constraints = constraintCategories(message, entities)
	s.complex = len(s.constraints) >= complexThreshold || contentType == models.ContentBudget

	cities := distinctLocations(entities.Locations)
	if len(cities) > 1 && !isOriginDestination(message) {
		if override := highConfidenceCity(entities.Locations, slots.PrimaryCity(state.Slots)); override != "" {
			s.overrideCity = override
		} else {
			s.cityConflict = cities
		}
	}

	if seasons := distinctSeasons(message); len(seasons) > 1 {
		s.seasonConflict = seasons
	}
	return s
}

// shortDuration is true for spans in hours, or "day trip" style phrasing.
func shortDuration(spans []models.Span) bool {
	for _, sp := range spans {
		if shortTimeframeRe.MatchString(sp.Text) {
			return true
		}
	}
	return false
}

func constraintCategories(message string, entities *models.ExtractionResult) []string {
	var out []string
	if budgetRe.MatchString(message) || len(entities.Money) > 0 {
		out = append(out, constraintBudget)
	}
	if groupRe.MatchString(message) {
		out = append(out, constraintGroup)
	}
	if transportRe.MatchString(message) {
		out = append(out, constraintTransport)
	}
	if timeRe.MatchString(message) || len(entities.Dates) > 0 || len(entities.Durations) > 0 {
		out = append(out, constraintTime)
	}
	if accommodationRe.MatchString(message) {
		out = append(out, constraintAccommodation)
	}
	return out
}

func distinctLocations(spans []models.Span) []string {
	seen := make(map[string]bool)
	var out []string
	for _, sp := range spans {
		key := slots.Normalize(sp.Text)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(sp.Text))
	}
	return out
}

// highConfidenceCity returns the single location scored at or above High
// that differs from the current city, when exactly one exists.
func highConfidenceCity(spans []models.Span, current string) string {
	var found []string
	for _, sp := range spans {
		if sp.Score >= cascade.High && !slots.Equal(sp.Text, current) {
			found = append(found, sp.Text)
		}
	}
	if len(distinctLocations(toSpans(found))) == 1 {
		return found[0]
	}
	return ""
}

func toSpans(texts []string) []models.Span {
	out := make([]models.Span, len(texts))
	for i, t := range texts {
		out[i] = models.Span{Text: t}
	}
	return out
}

var originDestRe = regexp.MustCompile(`(?i)\bfrom\s+\S.*\bto\s+\S`)

func isOriginDestination(message string) bool {
	return originDestRe.MatchString(message)
}

func distinctSeasons(message string) []string {
	seen := make(map[string]bool)
	for _, m := range seasonRe.FindAllString(message, -1) {
		m = strings.ToLower(m)
		if m == "fall" {
			m = "autumn"
		}
		seen[m] = true
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func disambiguationQuestion(s signals) string {
	if len(s.cityConflict) > 1 {
		return "You mentioned " + joinOr(s.cityConflict) + ". Which one should I focus on?"
	}
	return "You mentioned " + joinOr(s.seasonConflict) + ". Which season are you planning to travel in?"
}

func joinOr(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
}
