// Package securitytest provides test doubles for the security package,
// in the same spirit as providertest and routertest.
package securitytest

import (
	"sync"

	"github.com/parleyhq/parley/internal/security"
)

// NewTestAuditLogger returns an AuditLogger that captures events in memory
// and a function that snapshots what has been logged so far. The capture is
// safe for concurrent Log calls.
func NewTestAuditLogger() (*security.AuditLogger, func() []security.AuditEvent) {
	var (
		mu     sync.Mutex
		events []security.AuditEvent
	)
	logger := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})
	return logger, func() []security.AuditEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]security.AuditEvent(nil), events...)
	}
}
