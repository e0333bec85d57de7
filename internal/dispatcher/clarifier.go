package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"travel-assistant/internal/models"
	"travel-assistant/internal/slots"
)

// TemplateClarifier asks for missing slots with fixed wording.
type TemplateClarifier struct{}

func (TemplateClarifier) Ask(ctx context.Context, intent models.Intent, missing []string, known map[string]string) (string, error) {
	needCity, needDates := false, false
	for _, m := range missing {
		switch m {
		case slots.City:
			needCity = true
		case slots.Dates:
			needDates = true
		}
	}

	subject := topic(intent)
	city := slots.PrimaryCity(known)
	switch {
	case needCity && needDates:
		return fmt.Sprintf("Happy to help with %s! Which city or destination are you thinking of, and when are you planning to travel?", subject), nil
	case needCity:
		return fmt.Sprintf("Which city should I check %s for?", subject), nil
	case needDates && city != "":
		return fmt.Sprintf("When are you planning to be in %s? Dates or even just a month is fine.", city), nil
	case needDates:
		return "When are you planning to travel? Dates or even just a month is fine.", nil
	}
	return "Could you tell me a bit more about your trip?", nil
}

func topic(intent models.Intent) string {
	switch intent {
	case models.IntentWeather:
		return "the weather"
	case models.IntentPacking:
		return "a packing list"
	case models.IntentDestinations:
		return "trip ideas"
	case models.IntentAttractions:
		return "attractions"
	case models.IntentFlights:
		return "flights"
	}
	return "your trip"
}

const clarifyPrompt = `You are a friendly travel assistant. The user wants help with %s.
Already known: %s
Ask ONE short question that asks for: %s. Do not answer the request yet.`

// LLMClarifier words the question with the LLM. Callers fall back to
// TemplateClarifier on error.
type LLMClarifier struct {
	llm LLM
}

// NewLLMClarifier phrases clarifying questions with the model.
func NewLLMClarifier(llm LLM) *LLMClarifier {
	return &LLMClarifier{llm: llm}
}

func (c *LLMClarifier) Ask(ctx context.Context, intent models.Intent, missing []string, known map[string]string) (string, error) {
	knownJSON, err := json.Marshal(known)
	if err != nil {
		return "", err
	}
	text, err := c.llm.Complete(ctx, fmt.Sprintf(clarifyPrompt, topic(intent), knownJSON, strings.Join(missing, " and ")),
		models.CompletionOptions{MaxTokens: 80, Temperature: 0.4})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
