package contextswitch

import (
	"context"
	"strings"

	"travel-assistant/internal/cascade"
	"travel-assistant/internal/models"
	"travel-assistant/internal/slots"
)

const (
	entityOverlapThreshold = 0.3
	tokenOverlapThreshold  = 0.2
)

// EntityExtractor is satisfied by *cascade.Cascade.
type EntityExtractor interface {
	EntitiesFound(ctx context.Context, memo *cascade.Memo, text string) (*models.ExtractionResult, bool)
}

// Decision explains how a message was judged against a pending query.
type Decision struct {
	Switch bool
	Stage  string
	Ratio  float64
}

// Record converts the decision for the turn receipts.
func (d Decision) Record() models.Decision {
	outcome := "continuation"
	if d.Switch {
		outcome = "switch"
	}
	return models.Decision{
		Stage:      "context_switch." + d.Stage,
		Outcome:    outcome,
		Confidence: d.Ratio,
	}
}

// Detector judges whether a message abandons a pending query.
type Detector struct {
	extractor EntityExtractor
}

func NewDetector(extractor EntityExtractor) *Detector {
	return &Detector{extractor: extractor}
}

var questionWords = map[string]bool{
	"what": true, "where": true, "how": true, "when": true, "which": true,
	"who": true, "why": true, "can": true, "could": true, "is": true,
	"are": true, "do": true, "does": true, "should": true, "will": true,
}

// IsContextSwitch reports whether current starts a new topic rather than
// answering the question that produced pending. Weak signal means no switch.
func (d *Detector) IsContextSwitch(ctx context.Context, memo *cascade.Memo, current, pending string) bool {
	return d.Decide(ctx, memo, current, pending).Switch
}

// Decide is IsContextSwitch with the deciding stage and ratio.
func (d *Detector) Decide(ctx context.Context, memo *cascade.Memo, current, pending string) Decision {
	if slots.Normalize(current) == slots.Normalize(pending) {
		return Decision{Stage: "equal"}
	}
	if cascade.IsConsentToken(current) {
		return Decision{Stage: "consent_token"}
	}

	cur, okCur := d.extractor.EntitiesFound(ctx, memo, current)
	pen, okPen := d.extractor.EntitiesFound(ctx, memo, pending)
	// Ratio is 0 when current has no entities and pending does.
	if okCur && okPen {
		a, b := cur.Types(), pen.Types()
		if max(len(a), len(b)) > 0 {
			ratio := float64(sharedTypes(a, b, cur, pen)) / float64(max(len(a), len(b)))
			return Decision{Switch: ratio < entityOverlapThreshold, Stage: "entities", Ratio: ratio}
		}
	}

	if startsWithQuestionWord(current) {
		ratio := tokenOverlap(current, pending)
		if ratio < tokenOverlapThreshold {
			return Decision{Switch: true, Stage: "tokens", Ratio: ratio}
		}
		return Decision{Stage: "tokens", Ratio: ratio}
	}

	return Decision{Stage: "default"}
}

// sharedTypes counts entity types present in both. Location only counts as
// shared when both sides name the same place.
func sharedTypes(a, b map[models.EntityType]bool, cur, pen *models.ExtractionResult) int {
	n := 0
	for t := range a {
		if !b[t] {
			continue
		}
		if t == models.EntityLocation && !shareLocation(cur, pen) {
			continue
		}
		n++
	}
	return n
}

func shareLocation(a, b *models.ExtractionResult) bool {
	seen := make(map[string]bool)
	for _, l := range locations(a) {
		seen[slots.Normalize(l)] = true
	}
	for _, l := range locations(b) {
		if seen[slots.Normalize(l)] {
			return true
		}
	}
	return false
}

func locations(er *models.ExtractionResult) []string {
	var out []string
	for _, sp := range er.Locations {
		out = append(out, sp.Text)
	}
	for _, e := range er.Entities {
		if e.Type == models.EntityLocation {
			out = append(out, e.Value)
		}
	}
	return out
}

func startsWithQuestionWord(text string) bool {
	fields := strings.Fields(slots.Normalize(text))
	if len(fields) == 0 {
		return false
	}
	first := strings.Trim(fields[0], "?,.!'")
	if i := strings.IndexByte(first, '\''); i > 0 {
		first = first[:i]
	}
	return questionWords[first]
}

func contentWords(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(slots.Normalize(text)) {
		w = strings.Trim(w, "?,.!;:'\"()")
		if len([]rune(w)) > 2 {
			out[w] = true
		}
	}
	return out
}

func tokenOverlap(a, b string) float64 {
	wa, wb := contentWords(a), contentWords(b)
	larger := max(len(wa), len(wb))
	if larger == 0 {
		return 1
	}
	shared := 0
	for w := range wa {
		if wb[w] {
			shared++
		}
	}
	return float64(shared) / float64(larger)
}
