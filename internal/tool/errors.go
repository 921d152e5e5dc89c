package tool

import "errors"

// Sentinel errors for registration and execution. Callers match them with
// errors.Is; the registry and executor wrap them with tool names.
var (
	// ErrToolNotFound reports a lookup for a name the registry never saw.
	ErrToolNotFound = errors.New("tool not found")

	// ErrDenied reports an execution blocked by the access policy.
	ErrDenied = errors.New("tool execution denied by policy")

	// ErrNoScopes reports a tool registered without declaring any scope.
	ErrNoScopes = errors.New("tool must declare at least one scope")

	// ErrEmptyToolName reports a tool whose trimmed name is empty.
	ErrEmptyToolName = errors.New("tool name must not be empty")

	// ErrDuplicateTool reports a second registration under an existing name.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrToolInMultipleLists reports a policy that assigns one tool two
	// different levels, such as listing it under both allow and deny.
	ErrToolInMultipleLists = errors.New("tool appears in conflicting policy lists")
)
