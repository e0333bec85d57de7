package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"travel-assistant/internal/common/metrics"
	"travel-assistant/internal/consent"
	"travel-assistant/internal/models"
	"travel-assistant/internal/slots"
)

const (
	corpusPolicy       = "policy"
	corpusDestinations = "destinations"
)

// request is what an intent handler gets: the resolved intent and the
// merged slots, already persisted on the turn state.
type request struct {
	intent  models.Intent
	message string
	slots   map[string]string
	signals signals
	opts    turnOptions
}

func (d *Dispatcher) handle(ctx context.Context, t *turn, req request) outcome {
	ctx, span := d.obs.StartSpan(ctx, "dispatcher.handle."+string(req.intent))
	defer span.End()

	t.decide("handler", string(req.intent), 0, "")
	switch req.intent {
	case models.IntentWeather:
		return d.handleWeather(ctx, t, req)
	case models.IntentDestinations:
		return d.handleDestinations(ctx, t, req)
	case models.IntentPacking:
		return d.handlePacking(ctx, t, req)
	case models.IntentAttractions:
		return d.handleAttractions(ctx, t, req)
	case models.IntentPolicy:
		return d.handlePolicy(ctx, t, req)
	case models.IntentFlights:
		return d.handleFlights(ctx, t, req)
	case models.IntentWebSearch:
		t.decide("consent", "requested", 0, string(models.ConsentWebSearch))
		return outcome{reply: consent.Request(t.state, models.ConsentWebSearch, req.message), outcome: outcomeConsentPrompt}
	case models.IntentSystem:
		return outcome{reply: identityReply, outcome: outcomeAnswered}
	default:
		return d.handleUnknown(ctx, t, req)
	}
}

// toolReply turns a tool result into a reply. ok is false when the tool
// failed outright and the caller should apologise.
func (d *Dispatcher) toolReply(t *turn, tool string, res *models.ToolResult, err error) (string, bool) {
	if err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues(tool).Inc()
		t.logger.Warn("tool call failed", map[string]interface{}{"tool": tool, "error": err.Error()})
		t.decide("tool."+tool, "error", 0, "")
		return "", false
	}
	if res == nil {
		t.decide("tool."+tool, "empty", 0, "")
		return "", false
	}
	t.addFacts(res.Facts...)
	if !res.OK {
		t.decide("tool."+tool, "not_found", 0, res.Reason)
		return res.Reason, true
	}
	t.decide("tool."+tool, "ok", 0, "")
	return res.Summary, true
}

func (d *Dispatcher) handleWeather(ctx context.Context, t *turn, req request) outcome {
	res, err := d.tools.Weather(ctx, slots.PrimaryCity(req.slots), dateWindow(req.slots))
	reply, ok := d.toolReply(t, "weather", res, err)
	if !ok {
		return outcome{reply: apologyReply, outcome: outcomeError}
	}
	return outcome{reply: reply, outcome: outcomeAnswered}
}

func (d *Dispatcher) handleAttractions(ctx context.Context, t *turn, req request) outcome {
	res, err := d.tools.Attractions(ctx, slots.PrimaryCity(req.slots), req.slots[slots.TravelerProfile])
	reply, ok := d.toolReply(t, "attractions", res, err)
	if !ok {
		return outcome{reply: apologyReply, outcome: outcomeError}
	}
	return outcome{reply: reply, outcome: outcomeAnswered}
}

func (d *Dispatcher) handleFlights(ctx context.Context, t *turn, req request) outcome {
	res, err := d.tools.Flights(ctx, req.slots[slots.OriginCity], slots.PrimaryCity(req.slots), dateWindow(req.slots))
	reply, ok := d.toolReply(t, "flights", res, err)
	if !ok {
		return outcome{reply: apologyReply, outcome: outcomeError}
	}
	return outcome{reply: reply, outcome: outcomeAnswered}
}

func (d *Dispatcher) handlePolicy(ctx context.Context, t *turn, req request) outcome {
	answer, err := d.retriever.Query(ctx, req.message, corpusPolicy)
	if err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("rag").Inc()
		t.logger.Warn("policy retrieval failed", map[string]interface{}{"error": err.Error()})
		answer = nil
	}

	var extra string
	if country := req.slots[slots.Country]; country != "" {
		res, err := d.tools.CountryFacts(ctx, country)
		if reply, ok := d.toolReply(t, "country_facts", res, err); ok && res != nil && res.OK {
			extra = reply
		}
	}

	if !answer.Found() {
		t.decide("rag."+corpusPolicy, "no_citations", 0, "")
		if req.opts.skipWebFallback {
			return outcome{
				reply:   joinParagraphs("I couldn't find that in our travel policies.", extra),
				outcome: outcomeAnswered,
			}
		}
		t.decide("consent", "requested", 0, string(models.ConsentWebAfterRAG))
		return outcome{
			reply:   consent.Request(t.state, models.ConsentWebAfterRAG, req.message),
			outcome: outcomeConsentPrompt,
		}
	}

	t.decide("rag."+corpusPolicy, "found", 0, fmt.Sprintf("%d citations", len(answer.Citations)))
	t.addFacts(citationsToFacts("rag:"+corpusPolicy, answer.Citations)...)
	return outcome{
		reply:     joinParagraphs(answer.Summary, extra),
		citations: answer.Citations,
		outcome:   outcomeAnswered,
	}
}

const destinationsPrompt = `You are a travel assistant. Suggest what to do and where to stay for this trip.
Trip details: %s
User request: %q
Reference material:
%s
Answer in under 180 words. Only use facts from the reference material for specifics.`

func (d *Dispatcher) handleDestinations(ctx context.Context, t *turn, req request) outcome {
	city := slots.PrimaryCity(req.slots)
	question := strings.TrimSpace(req.message + " " + city)

	answer, err := d.retriever.Query(ctx, question, corpusDestinations)
	if err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("rag").Inc()
		t.logger.Warn("destinations retrieval failed", map[string]interface{}{"error": err.Error()})
		answer = nil
	}
	reference := "(none)"
	var cites []models.Citation
	if answer.Found() {
		reference = answer.Summary
		cites = answer.Citations
		t.addFacts(citationsToFacts("rag:"+corpusDestinations, cites)...)
		t.decide("rag."+corpusDestinations, "found", 0, fmt.Sprintf("%d citations", len(cites)))
	} else {
		t.decide("rag."+corpusDestinations, "no_citations", 0, "")
	}

	prompt := fmt.Sprintf(destinationsPrompt, describeSlots(req.slots), req.message, reference)
	text, err := d.complete(ctx, t, prompt, 400)
	if err != nil {
		if answer.Found() {
			return outcome{reply: answer.Summary, citations: cites, outcome: outcomeAnswered}
		}
		return outcome{reply: apologyReply, outcome: outcomeError}
	}
	return outcome{reply: text, citations: cites, outcome: outcomeAnswered}
}

const packingPrompt = `You are a travel assistant. Write a concise packing list.
Trip details: %s
Weather: %s
User request: %q
Group items under short headings. Keep it under 150 words.`

func (d *Dispatcher) handlePacking(ctx context.Context, t *turn, req request) outcome {
	city := slots.PrimaryCity(req.slots)
	weather := "unknown"
	res, err := d.tools.Weather(ctx, city, dateWindow(req.slots))
	if summary, ok := d.toolReply(t, "weather", res, err); ok && res != nil && res.OK {
		weather = summary
	}

	text, err := d.complete(ctx, t, fmt.Sprintf(packingPrompt, describeSlots(req.slots), weather, req.message), 350)
	if err != nil {
		return outcome{reply: fallbackPackingList(city, weather), outcome: outcomeAnswered}
	}
	return outcome{reply: text, outcome: outcomeAnswered}
}

func fallbackPackingList(city, weather string) string {
	list := "Essentials for " + city + ": passport or ID, phone and charger, travel adapter, " +
		"medication, comfortable walking shoes, a light jacket and a reusable water bottle."
	if weather != "unknown" {
		list = joinParagraphs(list, weather)
	}
	return list
}

const generalPrompt = `You are a helpful travel assistant. Answer briefly and stay on travel topics.
Known trip details: %s
User: %q`

func (d *Dispatcher) handleUnknown(ctx context.Context, t *turn, req request) outcome {
	text, err := d.complete(ctx, t, fmt.Sprintf(generalPrompt, describeSlots(req.slots), req.message), 300)
	if err != nil {
		return outcome{reply: blankReply, outcome: outcomeError}
	}
	return outcome{reply: text, outcome: outcomeAnswered}
}

func (d *Dispatcher) complete(ctx context.Context, t *turn, prompt string, maxTokens int) (string, error) {
	text, err := d.llm.Complete(ctx, prompt, models.CompletionOptions{MaxTokens: maxTokens})
	if err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("llm").Inc()
		t.logger.Warn("llm completion failed", map[string]interface{}{"error": err.Error()})
		t.decide("llm", "error", 0, "")
		return "", err
	}
	return text, nil
}

// webSearch runs an approved web search for query.
func (d *Dispatcher) webSearch(ctx context.Context, t *turn, query string) outcome {
	res, err := d.web.Search(ctx, query)
	if err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("web_search").Inc()
		t.logger.Warn("web search failed", map[string]interface{}{"error": err.Error()})
		t.decide("web_search", "error", 0, "")
		return outcome{reply: "Sorry, the web search didn't work just now. Please try again later.", outcome: outcomeError}
	}
	if len(res.Sources) == 0 {
		t.decide("web_search", "no_results", 0, "")
		return outcome{reply: "I searched the web but couldn't find anything reliable on that.", outcome: outcomeAnswered}
	}

	t.decide("web_search", "ok", 0, fmt.Sprintf("%d sources", len(res.Sources)))
	t.addFacts(citationsToFacts("web", res.Sources)...)

	lines := []string{"Here's what I found on the web:"}
	if res.Summary != "" {
		lines = append(lines, res.Summary)
	}
	for i, s := range res.Sources {
		lines = append(lines, fmt.Sprintf("%d. %s (%s)", i+1, s.Title, s.URL))
	}
	return outcome{reply: strings.Join(lines, "\n"), citations: res.Sources, outcome: outcomeAnswered}
}

func dateWindow(s map[string]string) string {
	for _, k := range []string{slots.Dates, slots.StartDate, slots.Month, slots.Season} {
		if v := s[k]; v != "" {
			if k == slots.StartDate && s[slots.EndDate] != "" {
				return v + ".." + s[slots.EndDate]
			}
			return v
		}
	}
	return ""
}

func describeSlots(s map[string]string) string {
	if len(s) == 0 {
		return "(none)"
	}
	order := append(append(append([]string{}, slots.LocationSlots...), slots.TimeWindowSlots...), slots.ProfileSlots...)
	var parts []string
	for _, k := range order {
		if v := s[k]; v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, ", ")
}
