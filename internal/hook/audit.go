package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// AuditRecord is one line of the exchange audit trail, serialized as JSON
// Lines.
type AuditRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Channel      string    `json:"channel"`
	ChatID       string    `json:"chat_id"`
	SessionID    string    `json:"session_id"`
	SenderID     string    `json:"sender_id"`
	InboundText  string    `json:"inbound_text"`
	OutboundText string    `json:"outbound_text"`
	StopReason   string    `json:"stop_reason"`
	Iterations   int       `json:"iterations"`
}

// AuditHook appends one AuditRecord per completed exchange to a writer.
// It registers at AfterSend and sorts behind every other hook there, so
// the trail reflects what actually went out.
type AuditHook struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewAuditHook returns a hook appending records to w. Production hands it
// a file, tests a buffer.
func NewAuditHook(w io.Writer) *AuditHook {
	return &AuditHook{out: w, now: time.Now}
}

var _ Hook = (*AuditHook)(nil)

// Position implements Hook.
func (a *AuditHook) Position() Position { return AfterSend }

// Priority implements Hook. Sorting last keeps the trail behind any
// AfterSend hook that still rewrites state.
func (a *AuditHook) Priority() int { return PriorityLast }

// Execute serializes the exchange and appends it to the log. The action is
// always ActionContinue; a write failure is reported to the pipeline but
// cannot block a response that already went out.
func (a *AuditHook) Execute(_ context.Context, hctx *Context) (Action, error) {
	line, err := json.Marshal(a.record(hctx))
	if err != nil {
		return ActionContinue, fmt.Errorf("audit: %w", err)
	}

	a.mu.Lock()
	_, err = a.out.Write(append(line, '\n'))
	a.mu.Unlock()
	if err != nil {
		return ActionContinue, fmt.Errorf("audit: %w", err)
	}
	return ActionContinue, nil
}

func (a *AuditHook) record(hctx *Context) AuditRecord {
	rec := AuditRecord{
		Timestamp:   a.now(),
		SenderID:    hctx.Inbound.Sender.ID,
		InboundText: hctx.Inbound.TextContent(),
	}
	if sess := hctx.Session; sess != nil {
		rec.SessionID = sess.SessionID()
		rec.Channel, rec.ChatID, _ = sess.SessionKey()
	}
	if hctx.Outbound != nil {
		rec.OutboundText = hctx.Outbound.TextContent()
	}
	if res := hctx.Result; res != nil {
		rec.StopReason = string(res.StopReason)
		rec.Iterations = res.Iterations
	}
	return rec
}
