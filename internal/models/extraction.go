package models

// EntityType is the coarse type of an extracted span.
type EntityType string

const (
	EntityLocation EntityType = "location"
	EntityDate     EntityType = "date"
	EntityMoney    EntityType = "money"
	EntityDuration EntityType = "duration"
)

type Span struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type Entity struct {
	Type  EntityType `json:"type"`
	Value string     `json:"value"`
	Score float64    `json:"score"`
}

// ExtractionResult is produced once per turn and never persisted.
type ExtractionResult struct {
	Entities   []Entity `json:"entities"`
	Locations  []Span   `json:"locations"`
	Dates      []Span   `json:"dates"`
	Money      []Span   `json:"money"`
	Durations  []Span   `json:"durations"`
	Confidence float64  `json:"confidence"`
}

// Types returns the set of entity types present.
func (e *ExtractionResult) Types() map[EntityType]bool {
	out := make(map[EntityType]bool)
	if e == nil {
		return out
	}
	if len(e.Locations) > 0 {
		out[EntityLocation] = true
	}
	if len(e.Dates) > 0 {
		out[EntityDate] = true
	}
	if len(e.Money) > 0 {
		out[EntityMoney] = true
	}
	for _, ent := range e.Entities {
		switch ent.Type {
		case EntityLocation, EntityDate, EntityMoney:
			out[ent.Type] = true
		}
	}
	return out
}

func (e *ExtractionResult) Empty() bool {
	if e == nil {
		return true
	}
	return len(e.Entities) == 0 && len(e.Locations) == 0 && len(e.Dates) == 0 &&
		len(e.Money) == 0 && len(e.Durations) == 0
}
