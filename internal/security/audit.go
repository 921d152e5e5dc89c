package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// EventType names a class of security-relevant activity.
type EventType string

// The audit trail distinguishes these event classes.
const (
	EventAuthSuccess   EventType = "auth_success"
	EventAuthFailure   EventType = "auth_failure"
	EventRateLimit     EventType = "rate_limit"
	EventToolCall      EventType = "tool_call"
	EventToolResult    EventType = "tool_result"
	EventSessionCreate EventType = "session_create"
	EventSessionDelete EventType = "session_delete"
	EventConfigChange  EventType = "config_change"
)

// AuditEvent is one entry in the audit trail.
type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Channel   string    `json:"channel,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	SenderID  string    `json:"sender_id,omitempty"`
	ToolName  string    `json:"tool_name,omitempty"`
	Detail    string    `json:"detail,omitempty"`

	// Metadata holds free-form context, such as the request path on
	// auth events.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig carries the collaborators for NewAuditLogger.
type AuditLoggerConfig struct {
	// Writer receives one JSON document per line. Leave nil to dispatch
	// events to OnEvent only.
	Writer io.Writer

	// Redactor scrubs Detail and Metadata values before they leave the
	// process. Optional.
	Redactor *Redactor

	// OnEvent observes every event after redaction. Optional.
	OnEvent func(AuditEvent)

	// Now substitutes the clock in tests.
	Now func() time.Time
}

// AuditLogger records security-relevant events as JSON Lines, scrubbing
// secrets on the way out. Logging never returns an error to the caller;
// failed writes are tallied and exposed through WriteErrors.
type AuditLogger struct {
	out      io.Writer
	redactor *Redactor
	onEvent  func(AuditEvent)
	now      func() time.Time

	mu        sync.Mutex
	writeErrs atomic.Int64
}

// NewAuditLogger builds a logger from cfg.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	l := &AuditLogger{
		out:      cfg.Writer,
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      cfg.Now,
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Log stamps event and appends it to the trail. The caller's Metadata map
// is cloned, never written to. OnEvent and the writer run under one lock
// so observers see events in write order.
func (l *AuditLogger) Log(event AuditEvent) {
	event.Timestamp = l.now()
	event.Metadata = maps.Clone(event.Metadata)
	l.scrub(&event)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.out != nil {
		if err := json.NewEncoder(l.out).Encode(event); err != nil {
			l.writeErrs.Add(1)
		}
	}
}

// scrub redacts the free-text fields in place.
func (l *AuditLogger) scrub(event *AuditEvent) {
	if l.redactor == nil {
		return
	}
	event.Detail = l.redactor.Redact(event.Detail)
	for k, v := range event.Metadata {
		event.Metadata[k] = l.redactor.Redact(v)
	}
}

// WriteErrors returns how many events could not be serialized or written.
// A filling disk surfaces here instead of failing message handling.
func (l *AuditLogger) WriteErrors() int64 {
	return l.writeErrs.Load()
}
