package models

type Citation struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// TurnResult is what ProcessTurn returns to a caller.
type TurnResult struct {
	Done      bool       `json:"done"`
	Reply     string     `json:"reply"`
	Citations []Citation `json:"citations,omitempty"`
}

// RouteResult is passed between the dispatcher and the router only.
type RouteResult struct {
	Next       Intent            `json:"next"`
	Slots      map[string]string `json:"slots"`
	Confidence float64           `json:"confidence"`
}
