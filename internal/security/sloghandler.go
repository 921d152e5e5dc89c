package security

import (
	"context"
	"log/slog"
)

// RedactingHandler wraps a slog.Handler and scrubs secrets from the
// message and every string-valued attribute before the record reaches
// the inner handler. Installed at the root of the logger tree it covers
// all call sites, including third-party code logging through slog.
type RedactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
}

var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler creates a handler that wraps inner, applying
// redactor to every string value.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{inner: inner, redactor: redactor}
}

// Enabled reports whether the inner handler wants level.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle redacts the record's message and attributes, then delegates.
func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs redacts the attributes before folding them into the inner
// handler, so values bound via Logger.With never bypass the scrub.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = h.redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(out), redactor: h.redactor}
}

// WithGroup returns a handler whose inner handler carries the group.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), redactor: h.redactor}
}

// redactAttr scrubs string values, recursing into groups. The attribute
// is resolved first so LogValuer, error, and Stringer types present
// their final representation to the redactor.
func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, ga := range group {
			out[i] = h.redactAttr(ga)
		}
		a.Value = slog.GroupValue(out...)
	case slog.KindString:
		a.Value = slog.StringValue(h.redactor.Redact(a.Value.String()))
	case slog.KindAny:
		// Errors and other opaque values still stringify; only swap the
		// value out when the redactor actually changed something.
		s := a.Value.String()
		if red := h.redactor.Redact(s); red != s {
			a.Value = slog.StringValue(red)
		}
	}
	return a
}
