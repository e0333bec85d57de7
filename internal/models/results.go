package models

type SearchResult struct {
	Query   string     `json:"query"`
	Sources []Citation `json:"sources"`
	Summary string     `json:"summary"`
}

// RAGAnswer is a retrieval result. An answer without citations counts as
// "nothing found".
type RAGAnswer struct {
	Corpus    string     `json:"corpus"`
	Summary   string     `json:"summary"`
	Citations []Citation `json:"citations"`
}

func (a *RAGAnswer) Found() bool {
	return a != nil && len(a.Citations) > 0
}

// ToolResult is returned by every domain tool. OK=false carries a Reason
// meant for the user, not an error.
type ToolResult struct {
	OK      bool   `json:"ok"`
	Summary string `json:"summary"`
	Reason  string `json:"reason,omitempty"`
	Facts   []Fact `json:"facts,omitempty"`
}

// ToolFailure is a non-OK result that is not an error.
func ToolFailure(reason string) *ToolResult {
	return &ToolResult{OK: false, Reason: reason}
}
