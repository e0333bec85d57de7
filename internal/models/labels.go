package models

// Label is a single classification with its confidence in [0,1].
type Label struct {
	Name       string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type Language struct {
	Code       string  `json:"code"`
	Confidence float64 `json:"confidence"`
	Mixed      bool    `json:"mixed,omitempty"`
}

// CompletionOptions tunes a single LLM call.
type CompletionOptions struct {
	MaxTokens   int
	Temperature float64
	JSON        bool
}
