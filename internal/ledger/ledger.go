package ledger

import (
	"encoding/json"
	"sync"
)

// Record is one model-issued tool invocation and its result, in the order it
// was issued during a generation.
type Record struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Output    string          `json:"output,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Ledger maps content hashes to ordered tool-call records. Hashes are
// indexed per conversation so a reset clears exactly that conversation's
// entries and never another's. State is process-lifetime only; after a
// restart the ledger starts empty and replay is best-effort.
type Ledger struct {
	mu      sync.RWMutex
	byHash  map[string][]Record
	indexes map[string][]string
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		byHash:  make(map[string][]Record),
		indexes: make(map[string][]string),
	}
}

// Record stores the record sequence for hash, replacing any previous
// sequence (last write wins), and registers the hash under conversationID.
func (l *Ledger) Record(conversationID, hash string, records []Record) {
	if hash == "" || len(records) == 0 {
		return
	}
	cp := make([]Record, len(records))
	copy(cp, records)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.byHash[hash]; !seen {
		l.indexes[conversationID] = append(l.indexes[conversationID], hash)
	}
	l.byHash[hash] = cp
}

// Lookup returns the record sequence for hash in original order.
// The returned slice is a copy; callers may not mutate ledger state.
func (l *Ledger) Lookup(hash string) ([]Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records, ok := l.byHash[hash]
	if !ok {
		return nil, false
	}
	cp := make([]Record, len(records))
	copy(cp, records)
	return cp, true
}

// Clear removes every hash recorded under conversationID along with its
// records. Other conversations are untouched.
func (l *Ledger) Clear(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, hash := range l.indexes[conversationID] {
		delete(l.byHash, hash)
	}
	delete(l.indexes, conversationID)
}

// Hashes returns the hashes recorded under conversationID, oldest first.
func (l *Ledger) Hashes(conversationID string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	hashes := l.indexes[conversationID]
	cp := make([]string, len(hashes))
	copy(cp, hashes)
	return cp
}

// Len returns the total number of hashes with recorded sequences.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byHash)
}
