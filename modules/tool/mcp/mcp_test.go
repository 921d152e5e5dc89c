package mcp

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/tool"
	"gopkg.in/yaml.v3"
)

func yamlNode(t *testing.T, raw string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &node); err != nil {
		t.Fatalf("yaml.Unmarshal() error: %v", err)
	}
	return node.Content[0]
}

// newProvisionedModule provisions a Module with a fresh registry service.
func newProvisionedModule(t *testing.T, cfg Config) (*Module, *tool.Registry) {
	t.Helper()
	registry := tool.NewRegistry()
	ctx := core.NewAppContext(nil, t.TempDir(), t.TempDir())
	ctx.RegisterService("tool.registry", registry)

	m := &Module{config: cfg}
	m.config.defaults()
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	return m, registry
}

// newEchoServer runs an in-process MCP server over streamable HTTP with an
// echo tool and an always-failing tool.
func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()

	s := server.NewMCPServer("echo-server", "1.0.0", server.WithToolCapabilities(false))
	s.AddTool(
		mcptypes.NewTool("echo",
			mcptypes.WithDescription("Echo the input text"),
			mcptypes.WithString("text", mcptypes.Required(), mcptypes.Description("Text to echo")),
		),
		func(_ context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
			text, _ := req.GetArguments()["text"].(string)
			return mcptypes.NewToolResultText("echo: " + text), nil
		},
	)
	s.AddTool(
		mcptypes.NewTool("fail", mcptypes.WithDescription("Always fails")),
		func(_ context.Context, _ mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
			return mcptypes.NewToolResultError("it broke"), nil
		},
	)

	srv := server.NewTestStreamableHTTPServer(s)
	t.Cleanup(srv.Close)
	return srv
}

func TestModuleInfo(t *testing.T) {
	m := &Module{}
	info := m.ModuleInfo()

	if info.ID != "tool.mcp" {
		t.Errorf("ID = %q, want %q", info.ID, "tool.mcp")
	}
	if info.New == nil {
		t.Fatal("New func is nil")
	}
	if _, ok := info.New().(*Module); !ok {
		t.Error("New() did not return a *Module")
	}
}

func TestConfigure_Defaults(t *testing.T) {
	m := &Module{}
	raw := `
servers:
  - name: files
    command: mcp-files
`
	if err := m.Configure(yamlNode(t, raw)); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}

	if m.config.ConnectTimeout != "30s" {
		t.Errorf("ConnectTimeout = %q", m.config.ConnectTimeout)
	}
	if m.config.CallTimeout != "60s" {
		t.Errorf("CallTimeout = %q", m.config.CallTimeout)
	}
	if len(m.config.Servers) != 1 || m.config.Servers[0].Command != "mcp-files" {
		t.Errorf("Servers = %+v", m.config.Servers)
	}
}

func TestConfigure_InvalidYAML(t *testing.T) {
	m := &Module{}
	if err := m.Configure(yamlNode(t, `servers: "not a list"`)); err == nil {
		t.Fatal("expected error")
	}
}

func TestProvision_RequiresRegistry(t *testing.T) {
	m := &Module{}
	err := m.Provision(core.NewAppContext(nil, t.TempDir(), t.TempDir()))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "tool registry") {
		t.Errorf("error = %v", err)
	}
}

func TestProvision_RegistersService(t *testing.T) {
	registry := tool.NewRegistry()
	ctx := core.NewAppContext(nil, t.TempDir(), t.TempDir())
	ctx.RegisterService("tool.registry", registry)

	m := &Module{}
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}

	svc, ok := ctx.Service("tool.mcp")
	if !ok || svc != any(m) {
		t.Error("tool.mcp service not registered")
	}
}

func TestStartBindsSanitizedEnv(t *testing.T) {
	registry := tool.NewRegistry()
	ctx := core.NewAppContext(nil, t.TempDir(), t.TempDir())
	ctx.RegisterService("tool.registry", registry)
	ctx.RegisterService("security.sanitized_env", []string{"PATH=/usr/bin"})

	m := &Module{}
	m.config.defaults()
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("Provision() error: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !slices.Equal(m.baseEnv, []string{"PATH=/usr/bin"}) {
		t.Errorf("baseEnv = %v", m.baseEnv)
	}
}

func TestStartFallsBackToProcessEnv(t *testing.T) {
	m, _ := newProvisionedModule(t, Config{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if len(m.baseEnv) == 0 {
		t.Error("baseEnv is empty, expected sanitized process environment")
	}
}

func TestValidate(t *testing.T) {
	stdio := ServerConfig{Name: "files", Command: "mcp-files"}
	http := ServerConfig{Name: "search", URL: "http://localhost:9000/mcp"}

	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "no servers",
			config:  Config{ConnectTimeout: "30s", CallTimeout: "60s"},
			wantErr: "at least one server",
		},
		{
			name: "missing name",
			config: Config{
				Servers:        []ServerConfig{{Command: "mcp-files"}},
				ConnectTimeout: "30s", CallTimeout: "60s",
			},
			wantErr: "name is required",
		},
		{
			name: "duplicate name",
			config: Config{
				Servers:        []ServerConfig{stdio, {Name: "files", URL: "http://x/mcp"}},
				ConnectTimeout: "30s", CallTimeout: "60s",
			},
			wantErr: "duplicate server name",
		},
		{
			name: "command and url both set",
			config: Config{
				Servers:        []ServerConfig{{Name: "both", Command: "x", URL: "http://x/mcp"}},
				ConnectTimeout: "30s", CallTimeout: "60s",
			},
			wantErr: "exactly one of command or url",
		},
		{
			name: "neither command nor url",
			config: Config{
				Servers:        []ServerConfig{{Name: "neither"}},
				ConnectTimeout: "30s", CallTimeout: "60s",
			},
			wantErr: "exactly one of command or url",
		},
		{
			name: "unknown scope",
			config: Config{
				Servers:        []ServerConfig{{Name: "files", Command: "x", Scopes: []string{"root"}}},
				ConnectTimeout: "30s", CallTimeout: "60s",
			},
			wantErr: "unknown scope",
		},
		{
			name: "invalid default access",
			config: Config{
				Servers:        []ServerConfig{{Name: "files", Command: "x", DefaultAccess: "maybe"}},
				ConnectTimeout: "30s", CallTimeout: "60s",
			},
			wantErr: "invalid default_access",
		},
		{
			name: "bad connect timeout",
			config: Config{
				Servers:        []ServerConfig{stdio},
				ConnectTimeout: "soon", CallTimeout: "60s",
			},
			wantErr: "invalid connect_timeout",
		},
		{
			name: "negative call timeout",
			config: Config{
				Servers:        []ServerConfig{stdio},
				ConnectTimeout: "30s", CallTimeout: "-5s",
			},
			wantErr: "must be positive",
		},
		{
			name: "valid",
			config: Config{
				Servers:        []ServerConfig{stdio, http},
				ConnectTimeout: "30s", CallTimeout: "60s",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Module{config: tt.config}
			err := m.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestStartRegistersTools(t *testing.T) {
	srv := newEchoServer(t)

	m, registry := newProvisionedModule(t, Config{
		Servers: []ServerConfig{{Name: "ext", URL: srv.URL}},
	})

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Stop(ctx); err != nil {
			t.Errorf("Stop() error: %v", err)
		}
	}()

	names := registry.Names()
	if !slices.Contains(names, "ext.echo") || !slices.Contains(names, "ext.fail") {
		t.Fatalf("registered tools = %v", names)
	}

	echo, err := registry.Get("ext.echo")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if echo.Description() != "Echo the input text" {
		t.Errorf("Description() = %q", echo.Description())
	}
	if !strings.Contains(string(echo.Schema()), `"text"`) {
		t.Errorf("Schema() = %s", echo.Schema())
	}
	if echo.DefaultAccess() != tool.AccessAllow {
		t.Errorf("DefaultAccess() = %q", echo.DefaultAccess())
	}
}

func TestExecuteProxiesCall(t *testing.T) {
	srv := newEchoServer(t)

	m, registry := newProvisionedModule(t, Config{
		Servers: []ServerConfig{{Name: "ext", URL: srv.URL}},
	})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	}()

	echo, err := registry.Get("ext.echo")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	out, err := echo.Execute(t.Context(), json.RawMessage(`{"text":"hi"}`), tool.ExecutionEnv{})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if out.Content != "echo: hi" {
		t.Errorf("Content = %q, want %q", out.Content, "echo: hi")
	}
	if out.IsError {
		t.Error("IsError = true")
	}
}

func TestExecuteToolError(t *testing.T) {
	srv := newEchoServer(t)

	m, registry := newProvisionedModule(t, Config{
		Servers: []ServerConfig{{Name: "ext", URL: srv.URL}},
	})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	}()

	fail, err := registry.Get("ext.fail")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	out, err := fail.Execute(t.Context(), nil, tool.ExecutionEnv{})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !out.IsError {
		t.Error("IsError = false, want true")
	}
	if out.Content != "it broke" {
		t.Errorf("Content = %q", out.Content)
	}
}

func TestStartSkipsUnreachableServer(t *testing.T) {
	// A server that is already gone: connection refused on first request.
	dead := httptest.NewServer(nil)
	url := dead.URL
	dead.Close()

	m, registry := newProvisionedModule(t, Config{
		Servers:        []ServerConfig{{Name: "gone", URL: url}},
		ConnectTimeout: "2s",
	})

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if names := registry.Names(); len(names) != 0 {
		t.Errorf("registered tools = %v, want none", names)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
}

func TestChildEnv(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/home/bot"}
	extra := map[string]string{"B_VAR": "2", "A_VAR": "1"}

	got := childEnv(base, extra)
	want := []string{"PATH=/usr/bin", "HOME=/home/bot", "A_VAR=1", "B_VAR=2"}
	if !slices.Equal(got, want) {
		t.Errorf("childEnv() = %v, want %v", got, want)
	}
}

func TestChildEnv_NoExtra(t *testing.T) {
	base := []string{"PATH=/usr/bin"}
	if got := childEnv(base, nil); !slices.Equal(got, base) {
		t.Errorf("childEnv() = %v", got)
	}
}
