package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/parleyhq/parley/internal/provider"
	"github.com/parleyhq/parley/internal/tool"
)

// changeModelSchema describes the single "model" parameter.
var changeModelSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"model": {
			"type": "string",
			"description": "Identifier of the model to switch to, e.g. a provider model name."
		}
	},
	"required": ["model"]
}`)

// ChangeModelTool switches the process-wide default model. The switch
// applies to this and later generations. It is admin-scoped, so it is only
// offered to users holding an explicit admin grant.
type ChangeModelTool struct {
	switcher provider.ModelSwitcher
}

// NewChangeModelTool creates the tool around a model-switching provider.
func NewChangeModelTool(s provider.ModelSwitcher) *ChangeModelTool {
	return &ChangeModelTool{switcher: s}
}

// Compile-time check that ChangeModelTool implements tool.Tool.
var _ tool.Tool = (*ChangeModelTool)(nil)

func (t *ChangeModelTool) Name() string { return "change_model" }

func (t *ChangeModelTool) Description() string {
	return "Switch the default language model for this and later responses."
}

func (t *ChangeModelTool) Schema() json.RawMessage { return changeModelSchema }

func (t *ChangeModelTool) Scopes() []tool.Scope { return []tool.Scope{tool.ScopeAdmin} }

func (t *ChangeModelTool) DefaultAccess() tool.AccessLevel { return tool.AccessAllow }

// Execute parses the target model and applies the switch. Argument and
// switch failures are reported as error outputs, not Go errors, so the
// model can read and relay them.
func (t *ChangeModelTool) Execute(_ context.Context, args json.RawMessage, _ tool.ExecutionEnv) (tool.Output, error) {
	var params struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return tool.Output{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	if params.Model == "" {
		return tool.Output{Content: "model must not be empty", IsError: true}, nil
	}

	if err := t.switcher.SetModel(params.Model); err != nil {
		return tool.Output{Content: fmt.Sprintf("model switch failed: %v", err), IsError: true}, nil
	}
	return tool.Output{Content: "model changed to " + params.Model}, nil
}
