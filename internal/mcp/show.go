package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deixis/rcpt/internal/receipt"
	"github.com/deixis/rcpt/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const historyDisabled = "History is disabled. Set history.enabled: true in .rcpt.yaml to record runs."

type showParams struct {
	RunID string `json:"run_id" jsonschema:"the run ID from an rcpt_run result or rcpt_history"`
}

func (h *handler) showHandler(ctx context.Context, req *mcp.CallToolRequest, params showParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	if h.store == nil {
		return errorResult(historyDisabled)
	}

	entry, err := h.store.Load(ctx, params.RunID)
	if errors.Is(err, report.ErrNotFound) {
		return errorResult(fmt.Sprintf("No run %s in history.", params.RunID))
	}
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	body, err := receipt.Marshal(entry.Receipt)
	if err != nil {
		return errorResult(err.Error())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", entry.RunID)
	fmt.Fprintf(&b, "Outcome: %s\n", entry.Receipt.Outcome)
	fmt.Fprintf(&b, "Receipt: %s\n", entry.Path)
	fmt.Fprintln(&b)
	b.Write(body)
	return textResult(b.String())
}

type historyParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of runs to list. Defaults to 10."`
}

func (h *handler) historyHandler(ctx context.Context, req *mcp.CallToolRequest, params historyParams) (*mcp.CallToolResult, any, error) {
	if h.store == nil {
		return errorResult(historyDisabled)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}

	entries, err := h.store.List(ctx, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to list runs: %v", err))
	}
	if len(entries) == 0 {
		return textResult("No runs recorded.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Runs (%d):\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "  %s\n", e.Summary())
	}
	fmt.Fprintf(&b, "\nShow a receipt with rcpt_show(run_id=%q).\n", entries[0].RunID)
	return textResult(b.String())
}
