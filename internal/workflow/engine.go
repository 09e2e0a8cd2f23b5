// Package workflow is the receipt pipeline: run a command, assemble the
// receipt, write it, and record it in history. It is consumed by both
// the MCP server and the CLI commands.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/deixis/rcpt/internal/config"
	"github.com/deixis/rcpt/internal/receipt"
	"github.com/deixis/rcpt/internal/report"
	"github.com/deixis/rcpt/internal/runner"
)

// ErrOutOutsideWorkspace is returned when a confined engine is asked to
// write a receipt outside its workspace.
var ErrOutOutsideWorkspace = errors.New("receipt path outside workspace")

// CommandRunner executes commands within a workspace.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(req runner.Request, cwd string) (*runner.Result, error)
}

// Engine holds shared dependencies for all receipt runs.
type Engine struct {
	Runner    CommandRunner
	Store     report.Store // nil disables history
	Workspace string       // relative receipt paths resolve against this
	Logger    *slog.Logger

	// ConfineOut rejects receipt paths that resolve outside Workspace.
	ConfineOut bool
}

// Job describes one run.
type Job struct {
	Request runner.Request
	Cwd     string // working directory, relative to the workspace
	Out     string // receipt path
}

// RunResult describes a run whose receipt was written.
type RunResult struct {
	RunID   string
	Receipt *receipt.Receipt
	Digest  string
	Path    string
}

// Run executes job and writes its receipt. Errors from the runner are
// returned unchanged so callers can distinguish launch, capture and
// wait failures; in all error cases no receipt is written.
func (e *Engine) Run(ctx context.Context, job Job) (*RunResult, error) {
	log := e.logger()

	path, err := e.resolveOut(job.Out)
	if err != nil {
		return nil, err
	}

	res, err := e.Runner.Run(job.Request, job.Cwd)
	if err != nil {
		return nil, err
	}

	r := receipt.FromResult(job.Request, res)
	log = log.With("run_id", res.RunID, "command", r.Command)

	if sig, ok := r.Outcome.(runner.Signaled); ok {
		log.WarnContext(ctx, "command terminated by signal",
			"signal", runner.SignalName(sig.Signal),
			"exit_code", r.ExitCode)
	}

	digest, err := receipt.Digest(r)
	if err != nil {
		log.WarnContext(ctx, "computing receipt digest", "error", err)
	}

	if err := report.WriteFile(path, r); err != nil {
		return nil, fmt.Errorf("writing receipt: %w", err)
	}

	log.DebugContext(ctx, "receipt written",
		"path", path,
		"exit_code", r.ExitCode,
		"duration_ms", r.DurationMS,
		"digest", digest)

	if e.Store != nil {
		entry := &report.Entry{
			RunID:      res.RunID,
			Digest:     digest,
			Path:       path,
			RecordedAt: time.Now(),
			Receipt:    r,
		}
		// An interrupt that cancelled ctx still leaves a receipt on disk.
		if err := e.Store.Save(context.WithoutCancel(ctx), entry); err != nil {
			log.WarnContext(ctx, "saving run to history", "error", err)
		}
	}

	return &RunResult{
		RunID:   res.RunID,
		Receipt: r,
		Digest:  digest,
		Path:    path,
	}, nil
}

func (e *Engine) resolveOut(out string) (string, error) {
	if out == "" {
		out = config.DefaultOut
	}
	if e.Workspace == "" {
		return out, nil
	}
	path := out
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.Workspace, path)
	}
	path = filepath.Clean(path)
	if !e.ConfineOut {
		return path, nil
	}

	rel, err := filepath.Rel(e.Workspace, path)
	if err != nil {
		return "", fmt.Errorf("resolving out: %w", err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q resolves outside workspace %q", ErrOutOutsideWorkspace, out, e.Workspace)
	}
	return path, nil
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
