package dispatcher

import (
	"context"
	"regexp"
	"strings"

	"travel-assistant/internal/cascade"
	"travel-assistant/internal/common/metrics"
	"travel-assistant/internal/consent"
	"travel-assistant/internal/models"
	"travel-assistant/internal/slots"
)

const shortRefinementWords = 8

var (
	refinementContextRe = regexp.MustCompile(`(?i)\b(with (my |the |our )?(kids|children|family|toddler|baby)|for (my |the |our )?(kids|children|family)|family[- ]friendly|kid[- ]friendly|(earlier|later|morning|evening|afternoon|night|red[- ]eye|overnight) flights?|(leave|depart|fly|arrive) (earlier|later))\b`)
	attractionsAskRe    = regexp.MustCompile(`(?i)\b(attractions?|things to do|what to see|sightseeing|museums?|sights)\b`)
)

// dispatch runs steps 3 through 9 for message: classification, soft
// signals, deep-research consent, routing, slot merge, the missing-slot
// check and the intent handler.
func (d *Dispatcher) dispatch(ctx context.Context, t *turn, message string, opts turnOptions) outcome {
	contentType, ctConf := d.contentType(ctx, t, message)
	intent, intentConf := d.cascadeIntent(ctx, t, message)

	if contentType == models.ContentUnrelated {
		t.decide("gate", "unrelated", ctConf, "")
		return outcome{reply: unrelatedReply, outcome: outcomeGate}
	}
	if intent == models.IntentSystem && contentType != models.ContentRefinement {
		t.state.LastIntent = models.IntentSystem
		t.decide("gate", "system", intentConf, "")
		return outcome{reply: identityReply, outcome: outcomeGate}
	}

	entities := d.entities(ctx, t, message)
	language := d.language(ctx, t, message)
	sig := deriveSignals(message, contentType, language, entities, t.state)
	if len(sig.constraints) > 0 {
		t.decide("signals", "constraints", 0, strings.Join(sig.constraints, ","))
	}

	if len(sig.cityConflict) > 1 || len(sig.seasonConflict) > 1 {
		t.decide("signals", "conflict", 0, strings.Join(append(sig.cityConflict, sig.seasonConflict...), ","))
		return outcome{reply: disambiguationQuestion(sig), outcome: outcomeDisambiguate}
	}

	if sig.complex && !opts.skipDeepResearch && !t.state.Consent.Active() {
		candidates := []models.ConsentKind{models.ConsentDeepResearch}
		if intent == models.IntentWebSearch {
			candidates = append(candidates, models.ConsentWebSearch)
		}
		kind := consent.Pick(candidates...)
		t.decide("consent", "requested", 0, string(kind))
		return outcome{reply: consent.Request(t.state, kind, message), outcome: outcomeConsentPrompt}
	}

	route := d.route(ctx, t, message, intent, intentConf, entities)
	if sig.overrideCity != "" {
		route.Slots[slots.City] = sig.overrideCity
	}

	resolved := d.resolveIntent(t, message, route, contentType, entities)

	merged := slots.Merge(t.state.Slots, route.Slots)
	if len(merged.Dropped) > 0 {
		t.decide("slots", "dropped", 0, strings.Join(merged.Dropped, ","))
	}
	if merged.LocationChanged {
		t.decide("slots", "location_changed", 0, strings.Join(merged.Cleared, ","))
	}

	waiver := sig.waiver()
	datesWaived := slots.DatesWaived(resolved, waiver)
	missing := slots.Missing(resolved, merged.Slots, waiver)

	t.state.Slots = merged.Slots
	t.state.LastIntent = resolved

	if len(missing) > 0 {
		t.state.ExpectedMissing = missing
		t.decide("slots", "missing", 0, strings.Join(missing, ","))
		question := d.ask(ctx, t, resolved, missing, merged.Slots)
		if datesWaived && sig.shortTimeframe {
			question = joinParagraphs(dayTripNote, question)
		}
		return outcome{reply: question, outcome: outcomeClarify}
	}
	t.state.ExpectedMissing = nil

	req := request{
		intent:  resolved,
		message: message,
		slots:   merged.Slots,
		signals: sig,
		opts:    opts,
	}
	out := d.handle(ctx, t, req)
	if out.outcome == outcomeAnswered {
		out.reply = joinParagraphs(append(sig.disclaimers(datesWaived), out.reply)...)
	}
	return out
}

func (d *Dispatcher) contentType(ctx context.Context, t *turn, message string) (models.ContentType, float64) {
	res := d.cascade.Classify(ctx, t.memo, cascade.KindContentType, message)
	if res == nil {
		t.decide("cascade.content_type", "no_signal", 0, "")
		return "", 0
	}
	t.decide("cascade.content_type", res.Label, res.Confidence, string(res.Stage))
	return models.ParseContentType(res.Label), res.Confidence
}

func (d *Dispatcher) cascadeIntent(ctx context.Context, t *turn, message string) (models.Intent, float64) {
	res := d.cascade.Classify(ctx, t.memo, cascade.KindIntent, message)
	if res == nil {
		t.decide("cascade.intent", "no_signal", 0, "")
		return models.IntentUnknown, 0
	}
	t.decide("cascade.intent", res.Label, res.Confidence, string(res.Stage))
	return models.ParseIntent(res.Label), res.Confidence
}

func (d *Dispatcher) entities(ctx context.Context, t *turn, message string) *models.ExtractionResult {
	res := d.cascade.Classify(ctx, t.memo, cascade.KindEntities, message)
	if res == nil || res.Entities == nil {
		return &models.ExtractionResult{}
	}
	return res.Entities
}

func (d *Dispatcher) language(ctx context.Context, t *turn, message string) string {
	res := d.cascade.Classify(ctx, t.memo, cascade.KindLanguage, message)
	if res == nil {
		return ""
	}
	return res.Label
}

// route asks the router collaborator and falls back to the cascade's intent
// and entities when it fails. The returned Slots map is never nil.
func (d *Dispatcher) route(ctx context.Context, t *turn, message string, intent models.Intent, conf float64, entities *models.ExtractionResult) *models.RouteResult {
	fallback := slotsFromEntities(message, intent, entities)

	res, err := d.router.Route(ctx, message, t.state)
	if err != nil || res == nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("router").Inc()
		detail := "nil result"
		if err != nil {
			detail = err.Error()
		}
		t.logger.Warn("router failed, using cascade result", map[string]interface{}{"error": detail})
		t.decide("router", "fallback", conf, string(intent))
		return &models.RouteResult{Next: intent, Slots: fallback, Confidence: conf}
	}

	if !res.Next.Valid() {
		res.Next = models.IntentUnknown
	}
	if res.Slots == nil {
		res.Slots = make(map[string]string)
	}
	for k, v := range fallback {
		if _, ok := res.Slots[k]; !ok {
			res.Slots[k] = v
		}
	}
	t.decide("router", string(res.Next), res.Confidence, "")
	return res
}

// resolveIntent applies the follow-up, unknown-fallback and short-refinement
// rules. route.Slots may gain values from an expected-missing follow-up.
func (d *Dispatcher) resolveIntent(t *turn, message string, route *models.RouteResult, contentType models.ContentType, entities *models.ExtractionResult) models.Intent {
	intent := route.Next
	last := t.state.LastIntent
	hasLast := last != "" && last != models.IntentUnknown && last != models.IntentSystem

	if hasLast && len(t.state.ExpectedMissing) > 0 && (intent == models.IntentUnknown || intent == last) {
		if filled := fillExpected(message, t.state.ExpectedMissing, entities, route.Slots); len(filled) > 0 {
			t.decide("intent", "follow_up", 0, strings.Join(filled, ","))
			return last
		}
	}

	if intent == models.IntentUnknown && hasLast && t.state.HasSlots() {
		t.decide("intent", "last_intent_fallback", 0, string(last))
		return last
	}

	if hasLast && intent != last && isShortRefinement(message, contentType, entities, t.state.Slots) {
		t.decide("intent", "refinement_override", 0, string(last))
		return last
	}
	return intent
}

// isShortRefinement is true for a brief message adjusting the current trip
// (family context or flight timing) without naming a new city or asking for
// attractions.
func isShortRefinement(message string, contentType models.ContentType, entities *models.ExtractionResult, prior map[string]string) bool {
	if len(strings.Fields(message)) > shortRefinementWords {
		return false
	}
	if !refinementContextRe.MatchString(message) {
		return false
	}
	if attractionsAskRe.MatchString(message) {
		return false
	}
	current := slots.PrimaryCity(prior)
	for _, loc := range entities.Locations {
		if !slots.Equal(loc.Text, current) {
			return false
		}
	}
	return true
}

// fillExpected writes values for the slots the last clarifying question
// asked for into patch and returns the keys it filled.
func fillExpected(message string, expected []string, entities *models.ExtractionResult, patch map[string]string) []string {
	var filled []string
	for _, key := range expected {
		if patch[key] != "" {
			filled = append(filled, key)
			continue
		}
		switch key {
		case slots.City:
			if len(entities.Locations) > 0 {
				patch[key] = entities.Locations[0].Text
			} else if v := bareValue(message); v != "" && !slots.IsPlaceholder(v) {
				patch[key] = v
			}
		case slots.Dates:
			if v := joinSpans(entities.Dates); v != "" {
				patch[key] = v
			} else if v := joinSpans(entities.Durations); v != "" {
				patch[key] = v
			}
		}
		if patch[key] != "" {
			filled = append(filled, key)
		}
	}
	return filled
}

var (
	bareValueRe = regexp.MustCompile(`^\p{Lu}[\p{L}'. -]{1,40}$`)
	courtesyRe  = regexp.MustCompile(`(?i)^(thanks|thank you|thx|hello|hi|hey|never ?mind|cool|great|nice)$`)
)

// bareValue accepts a short capitalised reply like "Lisbon" or "New York".
func bareValue(message string) string {
	v := strings.Trim(strings.TrimSpace(message), ".!?")
	if len(strings.Fields(v)) > 3 || !bareValueRe.MatchString(v) {
		return ""
	}
	if cascade.IsConsentToken(v) || courtesyRe.MatchString(v) {
		return ""
	}
	return v
}

func (d *Dispatcher) ask(ctx context.Context, t *turn, intent models.Intent, missing []string, known map[string]string) string {
	question, err := d.clarifier.Ask(ctx, intent, missing, known)
	if err != nil || strings.TrimSpace(question) == "" {
		if err != nil {
			metrics.CollaboratorErrorsTotal.WithLabelValues("clarifier").Inc()
			t.logger.Warn("clarifier failed, using template", map[string]interface{}{"error": err.Error()})
		}
		question, _ = TemplateClarifier{}.Ask(ctx, intent, missing, known)
	}
	return question
}
