// Package router dispatches inbound messages to conversation sessions,
// managing session lifecycle, per-conversation admission, and routing.
package router

import "errors"

// Failure modes callers match with errors.Is. The ErrNo* group comes
// out of New when a required Config field is nil.
var (
	// ErrInboxFull means the inbox was at capacity and the message was
	// dropped. Callers should shed load or alert the operator.
	ErrInboxFull = errors.New("router: inbox full, message dropped")

	// ErrRouterStopped means the router is shut down and no longer
	// accepts messages.
	ErrRouterStopped = errors.New("router: stopped")

	// ErrNoGenerator reports a nil Config.Generator.
	ErrNoGenerator = errors.New("router: no generator configured")

	// ErrNoContextBuilder reports a nil Config.Builder.
	ErrNoContextBuilder = errors.New("router: no context builder configured")

	// ErrNoResponseSender reports a nil Config.ResponseSender.
	ErrNoResponseSender = errors.New("router: no response sender configured")
)
