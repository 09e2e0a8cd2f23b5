package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deixis/rcpt/internal/receipt"
	"github.com/deixis/rcpt/internal/runner"
	"github.com/deixis/rcpt/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type runParams struct {
	Command string   `json:"command" jsonschema:"executable name (looked up on PATH) or path"`
	Args    []string `json:"args,omitempty" jsonschema:"arguments passed verbatim, without shell interpretation"`
	Cwd     string   `json:"cwd,omitempty" jsonschema:"working directory relative to the workspace. Defaults to the workspace root."`
	Out     string   `json:"out,omitempty" jsonschema:"receipt path, relative to the workspace. Defaults to the configured path or receipt.json."`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if params.Command == "" {
		return errorResult("command is required")
	}

	out := params.Out
	if out == "" {
		out = h.cfg.Out()
	}

	res, err := h.engine.Run(ctx, workflow.Job{
		Request: runner.Request{Command: params.Command, Args: params.Args},
		Cwd:     params.Cwd,
		Out:     out,
	})
	if err != nil {
		var launchErr *runner.LaunchError
		if errors.As(err, &launchErr) {
			return errorResult(fmt.Sprintf("Command could not be started (%s): %v\nNo receipt was written.", launchErr.Reason, err))
		}
		return errorResult(fmt.Sprintf("run failed: %v\nNo receipt was written.", err))
	}

	text, err := formatRun(res)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(text)
}

func formatRun(res *workflow.RunResult) (string, error) {
	body, err := receipt.Marshal(res.Receipt)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", res.RunID)
	fmt.Fprintf(&b, "Outcome: %s\n", res.Receipt.Outcome)
	fmt.Fprintf(&b, "Receipt: %s\n", res.Path)
	if res.Digest != "" {
		fmt.Fprintf(&b, "Digest: %s\n", res.Digest)
	}
	fmt.Fprintln(&b)
	b.Write(body)
	return b.String(), nil
}
