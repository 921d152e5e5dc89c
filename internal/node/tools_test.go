package node

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/parleyhq/parley/internal/tool"
)

func testDeviceTool(name string, cap Capability, store *DeviceStore) *DeviceTool {
	return &DeviceTool{
		name:        name,
		description: "test capability",
		capability:  cap,
		schema:      emptySchema,
		store:       store,
		timeout:     30 * time.Second,
	}
}

func TestDeviceToolMetadata(t *testing.T) {
	t.Parallel()

	dt := testDeviceTool("node.camera.snap", CapCamera, NewDeviceStore())

	if dt.Name() != "node.camera.snap" {
		t.Errorf("Name() = %q, want %q", dt.Name(), "node.camera.snap")
	}
	if got := dt.Scopes(); !slices.Equal(got, []tool.Scope{tool.ScopeNetwork}) {
		t.Errorf("Scopes() = %v, want [%s]", got, tool.ScopeNetwork)
	}
}

func TestDeviceToolDeniedByDefault(t *testing.T) {
	t.Parallel()

	dt := testDeviceTool("node.notification", CapNotification, NewDeviceStore())

	// Device tools act on someone's hardware, so they stay shut off
	// until a policy allowlists them.
	if dt.DefaultAccess() != tool.AccessDeny {
		t.Errorf("DefaultAccess() = %q, want %q", dt.DefaultAccess(), tool.AccessDeny)
	}
}

func TestDeviceToolExecuteWithoutDevice(t *testing.T) {
	t.Parallel()

	dt := testDeviceTool("node.camera.snap", CapCamera, NewDeviceStore())

	_, err := dt.Execute(t.Context(), json.RawMessage(`{}`), tool.ExecutionEnv{})
	if !errors.Is(err, ErrNoDeviceAvailable) {
		t.Errorf("Execute() error = %v, want %v", err, ErrNoDeviceAvailable)
	}
}
