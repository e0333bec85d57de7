package cascade

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"travel-assistant/internal/models"
)

const patternConfidence = 0.70

type intentPattern struct {
	intent models.Intent
	re     *regexp.Regexp
}

// Checked in order; the first match wins.
var intentPatterns = []intentPattern{
	{models.IntentSystem, regexp.MustCompile(`(?i)\b(who are you|what are you|are you (a )?(bot|human|ai)|your name|what can you do)\b`)},
	{models.IntentWebSearch, regexp.MustCompile(`(?i)\b(search (the )?(web|internet|online)|look (it )?up online|google it|latest news)\b`)},
	{models.IntentPolicy, regexp.MustCompile(`(?i)\b(visa|passport|baggage|luggage allowance|carry[- ]on|refund|cancellation|policy|policies|entry requirements?|insurance)\b`)},
	{models.IntentPacking, regexp.MustCompile(`(?i)\b(pack|packing|what to (bring|wear)|suitcase|bring with)\b`)},
	{models.IntentWeather, regexp.MustCompile(`(?i)\b(weather|forecast|temperature|rain(y|ing)?|sunny|humid|snow(ing)?|how (hot|cold|warm))\b`)},
	{models.IntentFlights, regexp.MustCompile(`(?i)\b(flights?|fly(ing)?|airlines?|airfare|plane tickets?|layover|depart(ure)?s?)\b`)},
	{models.IntentAttractions, regexp.MustCompile(`(?i)\b(attractions?|things to do|what to see|sightseeing|museums?|landmarks?|must[- ]see|sights)\b`)},
	{models.IntentDestinations, regexp.MustCompile(`(?i)\b(destinations?|where (should|can) (i|we) go|plan (a|my|our) trip|trip|vacation|holiday|itinerary|getaway|travel to)\b`)},
}

var (
	budgetPattern     = regexp.MustCompile(`(?i)(\bcheap(est)?\b|\bbudget\b|\baffordable\b|\binexpensive\b|\bunder \$?\d+|\$\s?\d+|\b\d+\s?(usd|dollars|eur|euros|gbp)\b|\bhow much\b)`)
	refinementPattern = regexp.MustCompile(`(?i)^(what about|how about|and |also |instead|actually|make it|change (it|that)|same but|with (my )?(kids|children|family))`)
	unrelatedPattern  = regexp.MustCompile(`(?i)\b(recipe|cook(ing)?|programming|javascript|python|homework|math(s)?|stock price|crypto|bitcoin|poem|joke|song lyrics|football score|write (me )?an essay)\b`)
	travelPattern     = regexp.MustCompile(`(?i)\b(travel|trip|flight|fly|hotel|visit|weather|pack|destination|vacation|holiday|tour|airport|visa|passport|beach|city|attractions?|itinerary|abroad)\b`)

	monthPattern    = regexp.MustCompile(`(?i:\b(january|february|march|april|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\b)|\bMay\b`)
	relativePattern = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|this weekend|next (week|month|year|weekend)|this (week|month|summer|winter|spring|fall|autumn)|in \d+ (days|weeks|months))\b`)
	isoDatePattern  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	moneyPattern    = regexp.MustCompile(`(?i)(\$\s?\d[\d,]*(\.\d+)?|\b\d[\d,]*\s?(usd|dollars|eur|euros|gbp|pounds)\b)`)
	durationPattern = regexp.MustCompile(`(?i)\b(\d+|a|one|two|three|four|five|six|seven)\s?(hours?|days?|nights?|weeks?)\b|\bday trip\b|\blong weekend\b`)
	// A capitalised run after a locative preposition.
	locationPattern = regexp.MustCompile(`\b(?i:in|to|from|at|visit|visiting|around|near|for)\s+((?:[A-Z][\p{L}'-]+)(?:\s+[A-Z][\p{L}'-]+){0,2})`)
)

var englishStopwords = map[string]bool{
	"the": true, "a": true, "in": true, "to": true, "for": true, "what": true, "is": true,
	"of": true, "and": true, "me": true, "my": true, "i": true, "how": true, "where": true,
	"should": true, "can": true, "about": true, "with": true, "weather": true, "trip": true,
}

// PatternStage is the deterministic last resort.
type PatternStage struct{}

// NewPatternStage returns the regex stage.
func NewPatternStage() *PatternStage { return &PatternStage{} }

func (s *PatternStage) Name() StageName    { return StagePattern }
func (s *PatternStage) Threshold() float64 { return Low }

func (s *PatternStage) Attempt(ctx context.Context, kind Kind, text string) (*Result, error) {
	switch kind {
	case KindIntent:
		return matchIntent(text), nil
	case KindContentType:
		return matchContentType(text), nil
	case KindEntities:
		er := ExtractPatternEntities(text)
		return &Result{Entities: er, Confidence: er.Confidence}, nil
	case KindLanguage:
		return matchLanguage(text), nil
	}
	return nil, nil
}

func matchIntent(text string) *Result {
	for _, p := range intentPatterns {
		if p.re.MatchString(text) {
			return &Result{Label: string(p.intent), Confidence: patternConfidence}
		}
	}
	return nil
}

func matchContentType(text string) *Result {
	trimmed := strings.TrimSpace(text)
	switch {
	case intentPatterns[0].re.MatchString(trimmed):
		return &Result{Label: string(models.ContentSystem), Confidence: patternConfidence}
	case refinementPattern.MatchString(trimmed) && len(strings.Fields(trimmed)) <= 8:
		return &Result{Label: string(models.ContentRefinement), Confidence: 0.65}
	case budgetPattern.MatchString(trimmed):
		return &Result{Label: string(models.ContentBudget), Confidence: patternConfidence}
	case unrelatedPattern.MatchString(trimmed) && !travelPattern.MatchString(trimmed):
		return &Result{Label: string(models.ContentUnrelated), Confidence: patternConfidence}
	case travelPattern.MatchString(trimmed) || matchIntent(trimmed) != nil:
		return &Result{Label: string(models.ContentTravel), Confidence: patternConfidence}
	}
	return nil
}

func matchLanguage(text string) *Result {
	var latin, other int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		if unicode.Is(unicode.Latin, r) {
			latin++
		} else {
			other++
		}
	}
	if latin+other == 0 {
		return nil
	}
	if other > 0 && latin > 0 && other*4 >= latin {
		return &Result{Label: "mixed", Confidence: 0.65}
	}
	if other > latin {
		return &Result{Label: "other", Confidence: 0.65}
	}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if englishStopwords[strings.Trim(w, "?!.,")] {
			return &Result{Label: "en", Confidence: 0.65}
		}
	}
	return nil
}

// ExtractPatternEntities pulls entity spans with regular expressions. An
// empty result still carries Low confidence: "nothing found" is an answer.
func ExtractPatternEntities(text string) *models.ExtractionResult {
	er := &models.ExtractionResult{Confidence: Low}

	for _, m := range locationPattern.FindAllStringSubmatch(text, -1) {
		if loc := trimMonthSuffix(m[1]); loc != "" {
			er.Locations = append(er.Locations, models.Span{Text: loc, Score: 0.65})
		}
	}
	for _, m := range monthPattern.FindAllString(text, -1) {
		er.Dates = append(er.Dates, models.Span{Text: m, Score: 0.7})
	}
	for _, m := range relativePattern.FindAllString(text, -1) {
		er.Dates = append(er.Dates, models.Span{Text: m, Score: 0.7})
	}
	for _, m := range isoDatePattern.FindAllString(text, -1) {
		er.Dates = append(er.Dates, models.Span{Text: m, Score: 0.8})
	}
	for _, m := range moneyPattern.FindAllString(text, -1) {
		er.Money = append(er.Money, models.Span{Text: strings.TrimSpace(m), Score: 0.8})
	}
	for _, m := range durationPattern.FindAllString(text, -1) {
		er.Durations = append(er.Durations, models.Span{Text: m, Score: 0.7})
	}

	if !er.Empty() {
		er.Confidence = 0.65
	}
	er.Entities = entitiesFromSpans(er)
	return er
}

// Drops trailing month names from a capture ("Rome March" -> "Rome"); a
// capture that is only a month yields "".
func trimMonthSuffix(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 && monthPattern.MatchString(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}
