package mcp

import (
	"context"
	"fmt"
	"maps"
	"slices"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// serverConn is an established connection to one MCP server.
type serverConn struct {
	name   string
	client *mcpclient.Client
}

// connectServer connects to a server, performs the initialize handshake,
// and lists its tools. The stdio transport spawns the child process as part
// of client construction; the HTTP transport needs an explicit start.
func connectServer(ctx context.Context, srv ServerConfig, baseEnv []string) (*serverConn, []mcptypes.Tool, error) {
	var (
		cli *mcpclient.Client
		err error
	)
	switch {
	case srv.Command != "":
		cli, err = mcpclient.NewStdioMCPClient(srv.Command, childEnv(baseEnv, srv.Env), srv.Args...)
	default:
		var opts []transport.StreamableHTTPCOption
		if len(srv.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(srv.Headers))
		}
		cli, err = mcpclient.NewStreamableHttpClient(srv.URL, opts...)
		if err == nil {
			err = cli.Start(ctx)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: mcptypes.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "parley",
				Version: "1.0.0",
			},
		},
	}
	if _, err := cli.Initialize(ctx, initReq); err != nil {
		_ = cli.Close()
		return nil, nil, fmt.Errorf("initialize: %w", err)
	}

	tools, err := fetchTools(ctx, cli)
	if err != nil {
		_ = cli.Close()
		return nil, nil, fmt.Errorf("list tools: %w", err)
	}

	return &serverConn{name: srv.Name, client: cli}, tools, nil
}

// fetchTools lists all tools, following pagination cursors.
func fetchTools(ctx context.Context, cli *mcpclient.Client) ([]mcptypes.Tool, error) {
	var all []mcptypes.Tool
	var req mcptypes.ListToolsRequest
	for {
		res, err := cli.ListTools(ctx, req)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		req.Params.Cursor = res.NextCursor
	}
	return all, nil
}

// childEnv extends the sanitized base environment with per-server
// variables, sorted for deterministic spawns.
func childEnv(base []string, extra map[string]string) []string {
	env := slices.Clone(base)
	for _, k := range slices.Sorted(maps.Keys(extra)) {
		env = append(env, k+"="+extra[k])
	}
	return env
}
