package cascade

import "sync"

type memoKey struct {
	text  string
	kind  Kind
	stage StageName
}

type memoEntry struct {
	res *Result
	err error
}

// Memo caches stage outcomes for one turn so each (text, kind, stage) runs at
// most once. Create one per turn and drop it when the turn ends.
type Memo struct {
	mu      sync.Mutex
	entries map[memoKey]memoEntry
}

// NewMemo returns an empty per-turn memo.
func NewMemo() *Memo {
	return &Memo{entries: make(map[memoKey]memoEntry)}
}

func (m *Memo) get(k memoKey) (memoEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[k]
	return e, ok
}

func (m *Memo) put(k memoKey, res *Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[k] = memoEntry{res: res, err: err}
}

// Len reports how many stage results are cached.
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
