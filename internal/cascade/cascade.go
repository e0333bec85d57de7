package cascade

import (
	"context"
	"strings"
	"unicode"

	"travel-assistant/internal/common/metrics"
	"travel-assistant/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Confidence bands. Anything below Low is treated as no signal.
var (
	High   = 0.90
	Medium = 0.75
	Low    = 0.60
)

// SetBands replaces the confidence bands. Call it once at startup, before
// any cascade runs.
func SetBands(high, medium, low float64) {
	High, Medium, Low = high, medium, low
}

// Kind is what a cascade run classifies.
type Kind string

const (
	KindContentType Kind = "content_type"
	KindIntent      Kind = "intent"
	KindEntities    Kind = "entities"
	KindLanguage    Kind = "language"
)

// StageName identifies a cascade stage in metrics, memo keys and receipts.
type StageName string

const (
	StageClassifier StageName = "classifier"
	StageLLM        StageName = "llm"
	StagePattern    StageName = "pattern"
)

// Result is what a stage produced. Confidence is always the producing
// stage's own, never blended.
type Result struct {
	Kind       Kind
	Stage      StageName
	Label      string
	Confidence float64
	Entities   *models.ExtractionResult
}

// Strategy is one extraction method. Attempt returns (nil, nil) when it has
// nothing to say.
type Strategy interface {
	Name() StageName
	Threshold() float64
	Attempt(ctx context.Context, kind Kind, text string) (*Result, error)
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

var tracer = otel.Tracer("travel-assistant/cascade")

// Cascade tries its stages in order and commits to the first confident one.
type Cascade struct {
	stages []Strategy
	filter *LocationFilter
	logger Logger
}

// Option configures a Cascade.
type Option func(*Cascade)

// WithLocationFilter validates extracted locations before they are returned.
func WithLocationFilter(f *LocationFilter) Option {
	return func(c *Cascade) { c.filter = f }
}

// New builds a cascade that tries stages in the given order.
func New(log Logger, stages []Strategy, opts ...Option) *Cascade {
	c := &Cascade{
		stages: stages,
		filter: NewLocationFilter(nil, nil),
		logger: log.With(map[string]interface{}{"component": "cascade"}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify runs the stages for kind and commits to the first one whose
// confidence clears its threshold. It returns nil when no stage does.
func (c *Cascade) Classify(ctx context.Context, memo *Memo, kind Kind, text string) *Result {
	ctx, span := tracer.Start(ctx, "cascade.classify")
	defer span.End()
	span.SetAttributes(attribute.String("kind", string(kind)))

	for _, stage := range c.stages {
		res, err := c.attempt(ctx, memo, stage, kind, text)
		if err != nil {
			metrics.CascadeStageTotal.WithLabelValues(string(kind), string(stage.Name()), "error").Inc()
			metrics.CollaboratorErrorsTotal.WithLabelValues(string(stage.Name())).Inc()
			c.logger.Warn("cascade stage failed", map[string]interface{}{
				"kind":  kind,
				"stage": stage.Name(),
				"error": err.Error(),
			})
			continue
		}
		if res == nil {
			metrics.CascadeStageTotal.WithLabelValues(string(kind), string(stage.Name()), "no_signal").Inc()
			continue
		}
		if res.Confidence < stage.Threshold() || res.Confidence < Low {
			metrics.CascadeStageTotal.WithLabelValues(string(kind), string(stage.Name()), "below_threshold").Inc()
			continue
		}

		metrics.CascadeStageTotal.WithLabelValues(string(kind), string(stage.Name()), "hit").Inc()
		span.SetAttributes(
			attribute.String("stage", string(stage.Name())),
			attribute.Float64("confidence", res.Confidence),
		)
		out := *res
		out.Kind = kind
		out.Stage = stage.Name()
		return &out
	}

	span.SetAttributes(attribute.Bool("no_signal", true))
	return nil
}

func (c *Cascade) attempt(ctx context.Context, memo *Memo, stage Strategy, kind Kind, text string) (*Result, error) {
	key := memoKey{text: text, kind: kind, stage: stage.Name()}
	if memo != nil {
		if e, ok := memo.get(key); ok {
			return e.res, e.err
		}
	}

	ctx, span := tracer.Start(ctx, "cascade.stage."+string(stage.Name()))
	res, err := stage.Attempt(ctx, kind, text)
	if err == nil && res != nil && kind == KindEntities {
		res.Entities = c.filter.Apply(ctx, res.Entities)
	}
	span.End()

	if memo != nil {
		memo.put(key, res, err)
	}
	return res, err
}

// ContentType returns "" when there is no signal.
func (c *Cascade) ContentType(ctx context.Context, memo *Memo, text string) (models.ContentType, float64) {
	res := c.Classify(ctx, memo, KindContentType, text)
	if res == nil {
		return "", 0
	}
	return models.ParseContentType(res.Label), res.Confidence
}

// Intent returns IntentUnknown when there is no signal.
func (c *Cascade) Intent(ctx context.Context, memo *Memo, text string) (models.Intent, float64) {
	res := c.Classify(ctx, memo, KindIntent, text)
	if res == nil {
		return models.IntentUnknown, 0
	}
	return models.ParseIntent(res.Label), res.Confidence
}

// Entities never returns nil; no signal is an empty result.
func (c *Cascade) Entities(ctx context.Context, memo *Memo, text string) *models.ExtractionResult {
	res := c.Classify(ctx, memo, KindEntities, text)
	if res == nil || res.Entities == nil {
		return &models.ExtractionResult{}
	}
	return res.Entities
}

// EntitiesFound is Entities for callers that need to tell a committed result
// from no signal at all.
func (c *Cascade) EntitiesFound(ctx context.Context, memo *Memo, text string) (*models.ExtractionResult, bool) {
	res := c.Classify(ctx, memo, KindEntities, text)
	if res == nil || res.Entities == nil {
		return &models.ExtractionResult{}, false
	}
	return res.Entities, true
}

// Language returns "" when there is no signal.
func (c *Cascade) Language(ctx context.Context, memo *Memo, text string) (string, float64) {
	res := c.Classify(ctx, memo, KindLanguage, text)
	if res == nil {
		return "", 0
	}
	return res.Label, res.Confidence
}

// IsBlank is true for input with no letters or digits: empty, whitespace,
// punctuation or emoji only.
func IsBlank(text string) bool {
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
