package models

import "time"

// Fact is a piece of evidence behind an answer.
type Fact struct {
	Source string `json:"source"`
	Key    string `json:"key"`
	Value  string `json:"value"`
	URL    string `json:"url,omitempty"`
}

// Decision records a branch the orchestrator took.
type Decision struct {
	Stage      string  `json:"stage"`
	Outcome    string  `json:"outcome"`
	Confidence float64 `json:"confidence,omitempty"`
	Detail     string  `json:"detail,omitempty"`
}

// Receipts are the evidence behind one answer.
type Receipts struct {
	ID        string     `json:"id,omitempty"`
	Facts     []Fact     `json:"facts"`
	Decisions []Decision `json:"decisions"`
	Reply     string     `json:"reply"`
	CreatedAt time.Time  `json:"createdAt,omitempty"`
}

func (r Receipts) Clone() Receipts {
	out := r
	out.Facts = append([]Fact(nil), r.Facts...)
	out.Decisions = append([]Decision(nil), r.Decisions...)
	return out
}

func (r Receipts) Empty() bool {
	return len(r.Facts) == 0 && len(r.Decisions) == 0 && r.Reply == ""
}
