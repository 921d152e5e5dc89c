package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parleyhq/parley/internal/tool"
)

// DeviceTool exposes one declared device capability as a tool.Tool.
// Each capability of each pairing-capable platform gets its own
// instance at registration.
type DeviceTool struct {
	name        string
	description string
	schema      json.RawMessage

	// capability selects which paired devices can serve the call;
	// store and timeout scope the dispatch.
	capability Capability
	store      *DeviceStore
	timeout    time.Duration
}

var _ tool.Tool = (*DeviceTool)(nil)

func (t *DeviceTool) Name() string            { return t.name }
func (t *DeviceTool) Description() string     { return t.description }
func (t *DeviceTool) Schema() json.RawMessage { return t.schema }

// Scopes marks device calls as network operations.
func (t *DeviceTool) Scopes() []tool.Scope { return []tool.Scope{tool.ScopeNetwork} }

// DefaultAccess denies. Device tools act on someone's phone or
// desktop, so policy has to allowlist them explicitly.
func (t *DeviceTool) DefaultAccess() tool.AccessLevel { return tool.AccessDeny }

// Execute forwards the call to the first paired device declaring the
// capability and waits out the reply under the tool timeout.
func (t *DeviceTool) Execute(ctx context.Context, args json.RawMessage, _ tool.ExecutionEnv) (tool.Output, error) {
	candidates := t.store.ByCapability(t.capability)
	if len(candidates) == 0 {
		return tool.Output{}, fmt.Errorf("%w: %s", ErrNoDeviceAvailable, t.capability)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := candidates[0].SendToolRequest(timeoutCtx, t.name, args)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return tool.Output{}, fmt.Errorf("%w: %s", ErrDeviceTimeout, t.name)
	case err != nil:
		return tool.Output{}, err
	}

	return tool.Output{Content: resp.Content, IsError: resp.IsError}, nil
}

// emptySchema is the schema for device tools that take no arguments.
var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

// notifySchema describes the notification tool's arguments.
var notifySchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {"type": "string", "description": "Notification title"},
		"body": {"type": "string", "description": "Notification body text"}
	},
	"required": ["body"]
}`)
