package models

// ConsentKind names the operation a pending consent would unlock.
type ConsentKind string

const (
	ConsentNone         ConsentKind = "none"
	ConsentWebSearch    ConsentKind = "web_search"
	ConsentDeepResearch ConsentKind = "deep_research"
	ConsentWebAfterRAG  ConsentKind = "web_after_rag"
)

// Priority orders consent kinds when more than one could apply to a turn.
func (k ConsentKind) Priority() int {
	switch k {
	case ConsentDeepResearch:
		return 3
	case ConsentWebSearch:
		return 2
	case ConsentWebAfterRAG:
		return 1
	default:
		return 0
	}
}

// ConsentState is IDLE or AWAITING a yes/no for Kind.
type ConsentState struct {
	Awaiting     bool        `json:"awaiting"`
	Kind         ConsentKind `json:"kind"`
	PendingQuery string      `json:"pendingQuery,omitempty"`
}

// Active reports whether a consent prompt is awaiting a reply.
func (c ConsentState) Active() bool {
	return c.Awaiting && c.Kind != ConsentNone && c.Kind != ""
}

// ThreadState is everything persisted for one conversation thread.
type ThreadState struct {
	Slots           map[string]string `json:"slots"`
	LastIntent      Intent            `json:"lastIntent,omitempty"`
	LastUserMessage string            `json:"lastUserMessage,omitempty"`
	Consent         ConsentState      `json:"consent"`
	ExpectedMissing []string          `json:"expectedMissing,omitempty"`
	LastReceipts    Receipts          `json:"lastReceipts"`
	Session         SessionMetadata   `json:"session"`
}

// NewThreadState returns an empty, idle state.
func NewThreadState() *ThreadState {
	return &ThreadState{
		Slots:   make(map[string]string),
		Consent: ConsentState{Kind: ConsentNone},
	}
}

// Clone returns a deep copy so handlers can't mutate the dispatcher's state
// through shared maps.
func (s *ThreadState) Clone() *ThreadState {
	out := *s
	out.Slots = make(map[string]string, len(s.Slots))
	for k, v := range s.Slots {
		out.Slots[k] = v
	}
	out.ExpectedMissing = append([]string(nil), s.ExpectedMissing...)
	out.LastReceipts = s.LastReceipts.Clone()
	return &out
}

func (s *ThreadState) HasSlots() bool {
	return len(s.Slots) > 0
}

// Reset clears everything except session timestamps.
func (s *ThreadState) Reset() {
	session := s.Session
	*s = *NewThreadState()
	s.Session = session
}
