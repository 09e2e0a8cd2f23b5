// Package mcp provides the rcpt MCP server, exposing receipt runs and
// run history as tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"time"

	"github.com/deixis/rcpt"
	"github.com/deixis/rcpt/internal/config"
	"github.com/deixis/rcpt/internal/report"
	"github.com/deixis/rcpt/internal/runner"
	"github.com/deixis/rcpt/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	engine *workflow.Engine
	runner *runner.Runner // retained for updateWorkspaceFromRoots
	cfg    *config.Config
	store  report.Store // nil when history is disabled
}

// NewServer creates an MCP server with all rcpt tools registered.
// Receipt paths requested by clients are confined to the workspace.
// store may be nil, in which case rcpt_show and rcpt_history report
// that history is disabled.
func NewServer(cfg *config.Config, engine *workflow.Engine, r *runner.Runner, store report.Store) *mcp.Server {
	engine.ConfineOut = true
	h := &handler{
		engine: engine,
		runner: r,
		cfg:    cfg,
		store:  store,
	}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "rcpt", Version: rcpt.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "rcpt_run",
		Description: `Run a command and return its execution receipt.

The command runs to completion with stdin closed. Both output streams are captured in full.
The receipt (command, args, exit_code, stdout, stderr, start_time, end_time, duration_ms) is
written as JSON to out (default from .rcpt.yaml, else receipt.json) and returned along with a run ID.
A signal-terminated command reports exit_code 128+signal.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "rcpt_show",
		Description: "Return the stored receipt for a run ID from a previous rcpt_run or rcpt run.",
	}, h.showHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "rcpt_history",
		Description: "List recent runs, newest first, with their run IDs and exit codes.",
	}, h.historyHandler)

	return s
}

// updateWorkspaceFromRoots queries the client for MCP roots and moves
// the workspace to the first file root, reloading .rcpt.yaml from there.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		return
	}

	h.runner.Workspace = workspace
	h.engine.Workspace = workspace
	h.cfg = loaded.Config
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
