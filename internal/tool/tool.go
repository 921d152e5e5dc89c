// Package tool defines the closed tool descriptor set and its execution
// model. Tools are the primary security boundary: every action the model
// takes goes through a registered tool, visibility is filtered by capability
// scope against the requesting user's roles, and execution is policy-gated.
package tool

import (
	"context"
	"encoding/json"
)

// Scope names the kind of access a tool needs. A tool declares at
// least one.
type Scope string

// Known scopes.
const (
	ScopeReadOnly  Scope = "read_only"
	ScopeReadWrite Scope = "read_write"
	ScopeNetwork   Scope = "network"
	ScopeExec      Scope = "exec"

	// ScopeAdmin marks tools that mutate process-wide state (model
	// switching, resets). Admin tools are never offered without an
	// explicit role grant.
	ScopeAdmin Scope = "admin"
)

// Tool is the interface every tool must implement.
// Tools are the fundamental unit of model capability.
type Tool interface {
	// Name is the stable identifier the model calls the tool by.
	Name() string

	// Description tells the model what the tool does.
	Description() string

	// Schema is the JSON Schema for the tool's arguments.
	Schema() json.RawMessage

	// Scopes lists the access the tool needs, at least one scope.
	Scopes() []Scope

	// DefaultAccess returns the access level applied when no explicit
	// policy covers this tool.
	DefaultAccess() AccessLevel

	// Execute runs the tool. Implementations honor ctx cancellation.
	Execute(ctx context.Context, args json.RawMessage, env ExecutionEnv) (Output, error)
}

// ExecutionEnv is what a tool may touch at run time. Secrets and
// os.Environ stay out of it.
type ExecutionEnv struct {
	// Workspace roots all file access for the session.
	Workspace string

	// DataDir holds state that outlives the session.
	DataDir string
}

// Output is what a tool run produced.
type Output struct {
	// Content carries the text handed back to the model.
	Content string

	// IsError marks tool-level failure; Content then describes it.
	IsError bool
}
