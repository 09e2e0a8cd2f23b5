// Command rcpt runs a command and records an execution receipt.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/deixis/rcpt"
	"github.com/deixis/rcpt/internal/config"
	rcptmcp "github.com/deixis/rcpt/internal/mcp"
	"github.com/deixis/rcpt/internal/receipt"
	"github.com/deixis/rcpt/internal/report"
	"github.com/deixis/rcpt/internal/runner"
	"github.com/deixis/rcpt/internal/workflow"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Process exit codes used when no receipt exit code applies.
const (
	exitLaunchFailed = 127
	exitInternal     = 125
)

// CLI is the rcpt command line.
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Run a command and write its receipt."`
	Show    ShowCmd    `cmd:"" help:"Print a recorded receipt from history."`
	History HistoryCmd `cmd:"" help:"List recent runs from history."`
	MCP     MCPCmd     `cmd:"" name:"mcp" help:"Start the MCP server."`
	Version VersionCmd `cmd:"" help:"Print the version."`
}

// RunCmd is `rcpt run [--out PATH] <command> [args...]`.
type RunCmd struct {
	Out     string   `short:"o" placeholder:"PATH" help:"Receipt path (default from .rcpt.yaml, else receipt.json)."`
	Command []string `arg:"" passthrough:"" help:"Command and arguments, passed through verbatim."`
}

// ShowCmd is `rcpt show <run-id>`.
type ShowCmd struct {
	RunID string `arg:"" name:"run-id" help:"Run ID printed by rcpt run or rcpt history."`
}

// HistoryCmd is `rcpt history [--limit N]`.
type HistoryCmd struct {
	Limit int `short:"n" default:"10" help:"Maximum number of runs to list."`
}

// MCPCmd is `rcpt mcp [--http addr]`.
type MCPCmd struct {
	HTTP         string `name:"http" placeholder:"ADDR" help:"Serve streamable HTTP on address (e.g. :9090) instead of stdio."`
	Instructions bool   `help:"Print model instructions and exit."`
}

// VersionCmd is `rcpt version`.
type VersionCmd struct{}

// env is the per-invocation environment shared by all commands.
type env struct {
	workspace string
	cfg       *config.Config
	logger    *slog.Logger
}

// exitStatus carries a receipt exit code out of a successful run.
type exitStatus int

func (e exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("rcpt"),
		kong.Description("Run a command and record an execution receipt."),
		kong.UsageOnError(),
	)

	e, err := newEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rcpt: %v\n", err)
		os.Exit(exitInternal)
	}

	os.Exit(exitCode(kctx.Run(e), os.Stderr))
}

func newEnv() (*env, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining working directory: %w", err)
	}
	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	logger := newLogger(cfg)
	if loaded.Path != "" {
		logger.Debug("loaded config", "path", loaded.Path)
	}
	return &env{workspace: workspace, cfg: cfg, logger: logger}, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.LogFormat() == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// exitCode maps a command error to the process exit code, printing a
// diagnostic for anything other than a receipt exit code.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var status exitStatus
	if errors.As(err, &status) {
		return int(status)
	}
	fmt.Fprintf(stderr, "rcpt: %v\n", err)
	var launchErr *runner.LaunchError
	if errors.As(err, &launchErr) {
		return exitLaunchFailed
	}
	return exitInternal
}

// openStore opens the history database, or returns nil when history is
// disabled.
func (e *env) openStore(ctx context.Context) (*report.SQLiteStore, error) {
	if !e.cfg.History.Enabled {
		return nil, nil
	}
	return report.OpenSQLite(ctx, e.cfg.HistoryPath())
}

// --- run ---

func (c *RunCmd) Run(e *env) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine := &workflow.Engine{
		Runner:    &runner.Runner{Workspace: e.workspace},
		Workspace: e.workspace,
		Logger:    e.logger,
	}

	sqlite, err := e.openStore(ctx)
	if err != nil {
		e.logger.Warn("history unavailable", "error", err)
	}
	if sqlite != nil {
		defer func() { _ = sqlite.Close() }()
		engine.Store = sqlite
	}

	out := c.Out
	if out == "" {
		out = e.cfg.Out()
	}

	res, err := engine.Run(ctx, workflow.Job{
		Request: runner.Request{Command: c.Command[0], Args: c.Command[1:]},
		Out:     out,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Receipt written to: %s\n", res.Path)
	return exitStatus(res.Receipt.ExitCode)
}

// --- show ---

func (c *ShowCmd) Run(e *env) error {
	ctx := context.Background()
	store, err := e.requireStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entry, err := store.Load(ctx, c.RunID)
	if err != nil {
		return err
	}
	data, err := receipt.Marshal(entry.Receipt)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

// --- history ---

func (c *HistoryCmd) Run(e *env) error {
	ctx := context.Background()
	store, err := e.requireStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.List(ctx, c.Limit)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Println(entry.Summary())
	}
	return nil
}

func (e *env) requireStore(ctx context.Context) (*report.SQLiteStore, error) {
	store, err := e.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("history is disabled; set history.enabled: true in " + config.FileName)
	}
	return store, nil
}

// --- mcp ---

func (c *MCPCmd) Run(e *env) error {
	if c.Instructions {
		fmt.Print(rcptmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := &runner.Runner{Workspace: e.workspace}
	engine := &workflow.Engine{
		Runner:    r,
		Workspace: e.workspace,
		Logger:    e.logger,
	}

	var store report.Store
	sqlite, err := e.openStore(ctx)
	if err != nil {
		e.logger.Warn("history unavailable", "error", err)
	}
	if sqlite != nil {
		defer func() { _ = sqlite.Close() }()
		store = report.NewLRUStore(5, sqlite)
		engine.Store = store
	}

	server := rcptmcp.NewServer(e.cfg, engine, r, store)

	if c.HTTP != "" {
		return serveHTTP(ctx, server, c.HTTP, e.logger)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string, logger *slog.Logger) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// --- version ---

func (c *VersionCmd) Run() error {
	fmt.Println(rcpt.Version)
	return nil
}
