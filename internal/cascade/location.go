package cascade

import (
	"context"
	"strings"

	"travel-assistant/internal/common/metrics"
	"travel-assistant/internal/models"
	"travel-assistant/internal/slots"
)

// LocationValidator confirms a name refers to a real place.
type LocationValidator interface {
	Validate(ctx context.Context, name string) (bool, error)
}

// GeocodeCache remembers validator verdicts per normalized name.
type GeocodeCache interface {
	Get(ctx context.Context, name string) (valid bool, found bool, err error)
	Set(ctx context.Context, name string, valid bool) error
}

// Words models tag as places that are brands or plain vocabulary.
var locationDenylist = map[string]bool{
	"google": true, "uber": true, "lyft": true, "airbnb": true, "amazon": true,
	"netflix": true, "apple": true, "iphone": true, "booking": true, "expedia": true,
	"tripadvisor": true, "kayak": true, "skyscanner": true, "hilton": true, "marriott": true,
	"weather": true, "hotel": true, "hotels": true, "flight": true, "flights": true,
	"trip": true, "beach": true, "city": true, "downtown": true, "airport": true,
	"home": true, "work": true, "here": true, "there": true, "today": true,
	"tomorrow": true, "tonight": true, "weekend": true, "yes": true, "no": true,
	"hello": true, "hi": true, "thanks": true, "please": true, "europe trip": true,
}

// LocationFilter drops extracted locations that are not real places.
type LocationFilter struct {
	validator LocationValidator
	cache     GeocodeCache
}

// NewLocationFilter returns a filter that always applies the length and
// denylist rules. validator and cache are optional.
func NewLocationFilter(validator LocationValidator, cache GeocodeCache) *LocationFilter {
	return &LocationFilter{validator: validator, cache: cache}
}

// Accept reports whether name should be kept as a location. Validator errors
// reject the name.
func (f *LocationFilter) Accept(ctx context.Context, name string) bool {
	n := slots.Normalize(name)
	if len([]rune(n)) <= 2 {
		return false
	}
	if locationDenylist[n] || slots.IsPlaceholder(n) {
		return false
	}
	if f == nil || f.validator == nil {
		return true
	}

	if f.cache != nil {
		if valid, found, err := f.cache.Get(ctx, n); err == nil && found {
			return valid
		}
	}

	valid, err := f.validator.Validate(ctx, name)
	if err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("geocode").Inc()
		return false
	}
	if f.cache != nil {
		_ = f.cache.Set(ctx, n, valid)
	}
	return valid
}

// Apply drops rejected and duplicate locations from er. It returns a new
// result and leaves er untouched.
func (f *LocationFilter) Apply(ctx context.Context, er *models.ExtractionResult) *models.ExtractionResult {
	if er == nil {
		return nil
	}
	out := *er
	seen := make(map[string]bool)
	verdict := make(map[string]bool)

	accept := func(text string) bool {
		n := slots.Normalize(text)
		if v, ok := verdict[n]; ok {
			return v
		}
		v := f.Accept(ctx, strings.TrimSpace(text))
		verdict[n] = v
		return v
	}

	out.Locations = nil
	for _, sp := range er.Locations {
		n := slots.Normalize(sp.Text)
		if seen[n] || !accept(sp.Text) {
			continue
		}
		seen[n] = true
		out.Locations = append(out.Locations, models.Span{Text: strings.TrimSpace(sp.Text), Score: sp.Score})
	}

	out.Entities = nil
	for _, e := range er.Entities {
		if e.Type == models.EntityLocation && !accept(e.Value) {
			continue
		}
		out.Entities = append(out.Entities, e)
	}
	return &out
}
