package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"travel-assistant/internal/common/metrics"
	"travel-assistant/internal/models"
)

const researchPrompt = `You are a travel assistant doing in-depth research for the user.
User request: %q
Known trip details: %s
Web findings:
%s
Internal travel notes:
%s
Write a short plan in under 220 words. Give concrete options and say which constraints each one meets.
Only state prices or schedules that appear in the findings.`

// deepResearch runs an approved multi-constraint request. Web search and
// retrieval run in parallel; a failure in either leaves its half empty.
func (d *Dispatcher) deepResearch(ctx context.Context, t *turn, query string) outcome {
	ctx, span := d.obs.StartSpan(ctx, "dispatcher.deep_research")
	defer span.End()

	var (
		web *models.SearchResult
		rag *models.RAGAnswer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := d.web.Search(gctx, query)
		if err != nil {
			metrics.CollaboratorErrorsTotal.WithLabelValues("web_search").Inc()
			t.logger.Warn("deep research web search failed", map[string]interface{}{"error": err.Error()})
			return nil
		}
		web = res
		return nil
	})
	g.Go(func() error {
		res, err := d.retriever.Query(gctx, query, "")
		if err != nil {
			metrics.CollaboratorErrorsTotal.WithLabelValues("rag").Inc()
			t.logger.Warn("deep research retrieval failed", map[string]interface{}{"error": err.Error()})
			return nil
		}
		rag = res
		return nil
	})
	_ = g.Wait()

	var webCites, ragCites []models.Citation
	webText, ragText := "(none)", "(none)"
	if web != nil && len(web.Sources) > 0 {
		webCites = web.Sources
		webText = summarizeSources(web.Summary, web.Sources)
		t.addFacts(citationsToFacts("web", webCites)...)
	}
	if rag.Found() {
		ragCites = rag.Citations
		ragText = rag.Summary
		t.addFacts(citationsToFacts("rag", ragCites)...)
	}
	t.decide("deep_research", "gathered", 0,
		fmt.Sprintf("web=%d rag=%d", len(webCites), len(ragCites)))

	cites := mergeCitations(webCites, ragCites)
	if len(cites) == 0 {
		return outcome{
			reply:   "I looked into it but couldn't find reliable information for that request. Could you loosen one of the constraints?",
			outcome: outcomeAnswered,
		}
	}

	text, err := d.complete(ctx, t, fmt.Sprintf(researchPrompt, query, describeSlots(t.state.Slots), webText, ragText), 600)
	if err != nil {
		return outcome{reply: joinParagraphs(webText, ragText), citations: cites, outcome: outcomeAnswered}
	}
	return outcome{reply: text, citations: cites, outcome: outcomeAnswered}
}

func summarizeSources(summary string, sources []models.Citation) string {
	lines := make([]string, 0, len(sources)+1)
	if summary != "" {
		lines = append(lines, summary)
	}
	for _, s := range sources {
		lines = append(lines, "- "+s.Title+": "+s.Snippet)
	}
	return strings.Join(lines, "\n")
}
