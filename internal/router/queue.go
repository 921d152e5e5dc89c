package router

import (
	"context"
	"sync"
	"time"
)

// Phase is the lifecycle stage of an in-flight generation.
type Phase int

const (
	// PhaseAwaitingModel covers a generation from admission until the
	// model requests its first tool call.
	PhaseAwaitingModel Phase = iota
	// PhaseRunningTools means at least one tool execution has started.
	PhaseRunningTools
)

// String returns the phase name for logging.
func (p Phase) String() string {
	switch p {
	case PhaseAwaitingModel:
		return "awaiting_model"
	case PhaseRunningTools:
		return "running_tools"
	default:
		return "unknown"
	}
}

// Decision is the queue's verdict on a newly arrived message.
type Decision int

const (
	// DecisionAdmitted means the conversation was idle and the message
	// starts a fresh generation.
	DecisionAdmitted Decision = iota
	// DecisionSuperseded means a generation awaiting the model was
	// cancelled and replaced by this message.
	DecisionSuperseded
	// DecisionRejected means the active generation is running tools and
	// the message was dropped.
	DecisionRejected
)

// String returns the decision name for logging.
func (d Decision) String() string {
	switch d {
	case DecisionAdmitted:
		return "admitted"
	case DecisionSuperseded:
		return "superseded"
	case DecisionRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// QueueEntry is one conversation's in-flight generation. The cancel func is
// the generation's token; whichever of preemption, expiry, or shutdown gets
// there first invokes it. All fields are guarded by the owning Queue's
// mutex after admission.
type QueueEntry struct {
	MessageID string
	cancel    context.CancelFunc
	phase     Phase
	admitted  time.Time
}

// Queue holds at most one QueueEntry per conversation and arbitrates
// admission. Every decision is taken in a single critical section, so two
// generations can never coexist for one conversation.
//
// Same map-plus-mutex shape as InMemorySessionStore; the lock is held only
// for pointer swaps and a token cancel, never across a generation.
type Queue struct {
	mu      sync.Mutex
	entries map[SessionKey]*QueueEntry

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		entries: make(map[SessionKey]*QueueEntry),
		now:     time.Now,
	}
}

// Admit decides what happens to a new message for the conversation:
//
//   - no active entry: a new entry is installed (DecisionAdmitted);
//   - active entry awaiting the model: its token is cancelled, the entry is
//     replaced, and the new message proceeds (DecisionSuperseded);
//   - active entry running tools: the message is dropped and no entry is
//     created (DecisionRejected, nil entry).
//
// The test-and-replace is one indivisible step.
func (q *Queue) Admit(key SessionKey, messageID string, cancel context.CancelFunc) (*QueueEntry, Decision) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, ok := q.entries[key]
	if ok && cur.phase == PhaseRunningTools {
		return nil, DecisionRejected
	}

	entry := &QueueEntry{
		MessageID: messageID,
		cancel:    cancel,
		phase:     PhaseAwaitingModel,
		admitted:  q.now(),
	}
	q.entries[key] = entry

	if ok {
		cur.cancel()
		return entry, DecisionSuperseded
	}
	return entry, DecisionAdmitted
}

// MarkRunningTools transitions entry to running-tools. It reports false
// when entry is no longer the conversation's active entry, in which case
// the phase is left untouched.
func (q *Queue) MarkRunningTools(key SessionKey, entry *QueueEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.entries[key] != entry {
		return false
	}
	entry.phase = PhaseRunningTools
	return true
}

// Settle removes entry if it is still the conversation's active entry.
// The return value tells the caller whether it owns the generation's
// user-visible outcome; a false return means the entry was superseded or
// expired and the outcome must be discarded.
func (q *Queue) Settle(key SessionKey, entry *QueueEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.entries[key] != entry {
		return false
	}
	delete(q.entries, key)
	return true
}

// ExpireIfAwaiting removes entry and cancels its token, but only if it is
// still the active entry and has not progressed to running-tools. Used by
// the per-message timer; entries running tools are exempt from expiry.
func (q *Queue) ExpireIfAwaiting(key SessionKey, entry *QueueEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.entries[key] != entry || entry.phase != PhaseAwaitingModel {
		return false
	}
	delete(q.entries, key)
	entry.cancel()
	return true
}

// Phase reports the active entry's phase for the conversation, with ok
// false when the conversation is idle.
func (q *Queue) Phase(key SessionKey) (Phase, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[key]
	if !ok {
		return 0, false
	}
	return entry.phase, true
}

// Len returns the number of conversations with an in-flight generation.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
