package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/parleyhq/parley/internal/tool"
)

// toolCaller is the slice of the MCP client a proxy tool needs.
type toolCaller interface {
	CallTool(ctx context.Context, request mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error)
}

// emptyObjectSchema stands in for tools whose server reported no input
// schema; providers reject tool definitions without one.
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// proxyTool exposes one remote MCP tool as a tool.Tool. The registered
// name is namespaced with the server name; the remote name goes on the
// wire.
type proxyTool struct {
	name        string
	remoteName  string
	description string
	schema      json.RawMessage
	scopes      []tool.Scope
	access      tool.AccessLevel
	caller      toolCaller
	timeout     time.Duration
}

// Compile-time interface check.
var _ tool.Tool = (*proxyTool)(nil)

// newProxyTool builds the descriptor for one listed tool.
func newProxyTool(serverName string, caller toolCaller, mt mcptypes.Tool, scopes []tool.Scope, access tool.AccessLevel, timeout time.Duration) *proxyTool {
	if mt.InputSchema.Type == "" {
		mt.InputSchema.Type = "object"
	}
	schema, err := json.Marshal(mt.InputSchema)
	if err != nil {
		schema = emptyObjectSchema
	}
	return &proxyTool{
		name:        serverName + "." + mt.Name,
		remoteName:  mt.Name,
		description: mt.Description,
		schema:      schema,
		scopes:      scopes,
		access:      access,
		caller:      caller,
		timeout:     timeout,
	}
}

// Name implements tool.Tool.
func (t *proxyTool) Name() string { return t.name }

// Description implements tool.Tool.
func (t *proxyTool) Description() string { return t.description }

// Schema implements tool.Tool.
func (t *proxyTool) Schema() json.RawMessage { return t.schema }

// Scopes implements tool.Tool.
func (t *proxyTool) Scopes() []tool.Scope { return t.scopes }

// DefaultAccess implements tool.Tool.
func (t *proxyTool) DefaultAccess() tool.AccessLevel { return t.access }

// Execute implements tool.Tool by proxying the call to the remote server.
func (t *proxyTool) Execute(ctx context.Context, args json.RawMessage, _ tool.ExecutionEnv) (tool.Output, error) {
	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return tool.Output{}, fmt.Errorf("tool %s: decoding arguments: %w", t.name, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	result, err := t.caller.CallTool(callCtx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      t.remoteName,
			Arguments: arguments,
		},
	})
	if err != nil {
		return tool.Output{}, fmt.Errorf("tool %s: %w", t.name, err)
	}

	return tool.Output{
		Content: flattenContent(result.Content),
		IsError: result.IsError,
	}, nil
}

// flattenContent joins the text parts of a tool result. Image and resource
// parts have no representation in a chat reply and are dropped.
func flattenContent(parts []mcptypes.Content) string {
	var sb strings.Builder
	for _, part := range parts {
		tc, ok := part.(mcptypes.TextContent)
		if !ok {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(tc.Text)
	}
	return sb.String()
}
