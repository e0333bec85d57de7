package dispatcher

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	resetRe   = regexp.MustCompile(`(?i)^\s*(start over|reset|new (chat|conversation|trip)|forget (everything|it all)|clear (everything|history))[\s.!]*$`)
	explainRe = regexp.MustCompile(`(?i)\b(why did you (say|suggest|recommend|pick|choose)|why (that|this) (answer|one)|explain (that|this|your (answer|reasoning))|how did you (get|decide|know)|what('s| is| are) (your|the) sources?|where did (you|that) (get|come from|find))\b`)
)

func isReset(message string) bool {
	return resetRe.MatchString(message)
}

func isExplainRequest(message string) bool {
	return explainRe.MatchString(message)
}

const maxExplainFacts = 5

// explain answers from the previous turn's receipts. It calls no
// collaborators and leaves LastReceipts untouched.
func (d *Dispatcher) explain(t *turn) outcome {
	prev := t.state.LastReceipts
	if prev.Empty() {
		return outcome{reply: "I haven't answered anything in this conversation yet, so there's nothing to explain.", outcome: outcomeExplain}
	}

	var b strings.Builder
	b.WriteString("Here's how I got my last answer:")

	var steps []string
	for _, dec := range prev.Decisions {
		if dec.Stage == "" {
			continue
		}
		step := dec.Stage + ": " + dec.Outcome
		if dec.Detail != "" {
			step += " (" + dec.Detail + ")"
		}
		steps = append(steps, step)
	}
	if len(steps) > 0 {
		b.WriteString("\nSteps: ")
		b.WriteString(strings.Join(steps, "; "))
	}

	if len(prev.Facts) == 0 {
		b.WriteString("\nI didn't use any external sources for it.")
	} else {
		b.WriteString("\nSources:")
		for i, f := range prev.Facts {
			if i == maxExplainFacts {
				fmt.Fprintf(&b, "\n(and %d more)", len(prev.Facts)-maxExplainFacts)
				break
			}
			line := f.Source + ": " + f.Key
			if f.Value != "" {
				line += " = " + f.Value
			}
			if f.URL != "" {
				line += " <" + f.URL + ">"
			}
			b.WriteString("\n- " + line)
		}
	}
	return outcome{reply: b.String(), outcome: outcomeExplain}
}
