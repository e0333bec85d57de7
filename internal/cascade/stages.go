package cascade

import (
	"context"
	"fmt"
	"strings"

	apperrors "travel-assistant/internal/common/errors"
	"travel-assistant/internal/common/validation"
	"travel-assistant/internal/models"
)

// Classifier is the structured classification / NER service.
type Classifier interface {
	Classify(ctx context.Context, kind string, text string) (models.Label, error)
	DetectLanguage(ctx context.Context, text string) (models.Language, error)
	ExtractEntities(ctx context.Context, text string) (*models.ExtractionResult, error)
}

type LLM interface {
	Complete(ctx context.Context, prompt string, opts models.CompletionOptions) (string, error)
}

// ClassifierStage asks the structured classifier. It must clear Medium.
type ClassifierStage struct {
	client Classifier
}

// NewClassifierStage wraps the hosted classifier as the first cascade stage.
func NewClassifierStage(client Classifier) *ClassifierStage {
	return &ClassifierStage{client: client}
}

func (s *ClassifierStage) Name() StageName    { return StageClassifier }
func (s *ClassifierStage) Threshold() float64 { return Medium }

func (s *ClassifierStage) Attempt(ctx context.Context, kind Kind, text string) (*Result, error) {
	switch kind {
	case KindEntities:
		er, err := s.client.ExtractEntities(ctx, text)
		if err != nil {
			return nil, err
		}
		if er == nil {
			return nil, nil
		}
		return &Result{Entities: er, Confidence: er.Confidence}, nil

	case KindLanguage:
		lang, err := s.client.DetectLanguage(ctx, text)
		if err != nil {
			return nil, err
		}
		if lang.Code == "" {
			return nil, nil
		}
		label := strings.ToLower(lang.Code)
		if lang.Mixed {
			label = "mixed"
		}
		return &Result{Label: label, Confidence: lang.Confidence}, nil

	default:
		label, err := s.client.Classify(ctx, string(kind), text)
		if err != nil {
			return nil, err
		}
		if label.Name == "" {
			return nil, nil
		}
		return &Result{Label: label.Name, Confidence: label.Confidence}, nil
	}
}

var labelSchema = validation.MustCompile(map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"label", "confidence"},
	"properties": map[string]interface{}{
		"label":      map[string]interface{}{"type": "string"},
		"confidence": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
	},
})

var spanListSchema = map[string]interface{}{
	"type": "array",
	"items": map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"text"},
		"properties": map[string]interface{}{
			"text":  map[string]interface{}{"type": "string"},
			"score": map[string]interface{}{"type": "number"},
		},
	},
}

var entitiesSchema = validation.MustCompile(map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"confidence"},
	"properties": map[string]interface{}{
		"locations":  spanListSchema,
		"dates":      spanListSchema,
		"money":      spanListSchema,
		"durations":  spanListSchema,
		"confidence": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
	},
})

const (
	intentPrompt = `Classify the travel assistant user message into exactly one intent from:
weather, destinations, packing, attractions, policy, flights, web_search, system, unknown.
Respond only with JSON: {"label": "<intent>", "confidence": <0..1>}.
Message: %q`

	contentTypePrompt = `Classify the user message for a travel assistant into exactly one content type from:
travel, budget, unrelated, refinement, system.
"refinement" means it adjusts the previous request. "budget" means cost is the main constraint.
Respond only with JSON: {"label": "<type>", "confidence": <0..1>}.
Message: %q`

	languagePrompt = `Identify the language of the message. Use an ISO 639-1 code, or "mixed" if it mixes languages.
Respond only with JSON: {"label": "<code>", "confidence": <0..1>}.
Message: %q`

	entitiesPrompt = `Extract travel entities from the message.
Respond only with JSON:
{"locations":[{"text":"","score":0}],"dates":[{"text":"","score":0}],"money":[{"text":"","score":0}],"durations":[{"text":"","score":0}],"confidence":0}
Use empty arrays when nothing is present. Locations are real cities, regions or countries only.
Message: %q`
)

// LLMStage asks a language model for the same judgment as JSON. It must
// clear Low.
type LLMStage struct {
	llm LLM
}

// NewLLMStage asks the language model for a JSON label.
func NewLLMStage(llm LLM) *LLMStage {
	return &LLMStage{llm: llm}
}

func (s *LLMStage) Name() StageName    { return StageLLM }
func (s *LLMStage) Threshold() float64 { return Low }

func (s *LLMStage) Attempt(ctx context.Context, kind Kind, text string) (*Result, error) {
	var prompt string
	switch kind {
	case KindIntent:
		prompt = intentPrompt
	case KindContentType:
		prompt = contentTypePrompt
	case KindLanguage:
		prompt = languagePrompt
	case KindEntities:
		prompt = entitiesPrompt
	default:
		return nil, nil
	}

	raw, err := s.llm.Complete(ctx, fmt.Sprintf(prompt, text), models.CompletionOptions{
		MaxTokens:   300,
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}
	raw = validation.CleanJSON(raw)

	if kind == KindEntities {
		var out struct {
			Locations  []models.Span `json:"locations"`
			Dates      []models.Span `json:"dates"`
			Money      []models.Span `json:"money"`
			Durations  []models.Span `json:"durations"`
			Confidence float64       `json:"confidence"`
		}
		if err := entitiesSchema.DecodeJSON(raw, &out); err != nil {
			return nil, apperrors.NewLLMInvalidJSONError(err)
		}
		er := &models.ExtractionResult{
			Locations:  out.Locations,
			Dates:      out.Dates,
			Money:      out.Money,
			Durations:  out.Durations,
			Confidence: out.Confidence,
		}
		er.Entities = entitiesFromSpans(er)
		return &Result{Entities: er, Confidence: out.Confidence}, nil
	}

	var label models.Label
	if err := labelSchema.DecodeJSON(raw, &label); err != nil {
		return nil, apperrors.NewLLMInvalidJSONError(err)
	}
	name := strings.ToLower(strings.TrimSpace(label.Name))
	if name == "" {
		return nil, nil
	}
	if kind == KindContentType && models.ParseContentType(name) == "" {
		return nil, nil
	}
	return &Result{Label: name, Confidence: label.Confidence}, nil
}

func entitiesFromSpans(er *models.ExtractionResult) []models.Entity {
	var out []models.Entity
	add := func(t models.EntityType, spans []models.Span) {
		for _, sp := range spans {
			out = append(out, models.Entity{Type: t, Value: sp.Text, Score: sp.Score})
		}
	}
	add(models.EntityLocation, er.Locations)
	add(models.EntityDate, er.Dates)
	add(models.EntityMoney, er.Money)
	add(models.EntityDuration, er.Durations)
	return out
}
