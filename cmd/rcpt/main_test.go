package main

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/deixis/rcpt/internal/runner"
)

func TestExitCode(t *testing.T) {
	launch := &runner.LaunchError{Command: "nope", Reason: runner.NotFound, Err: exec.ErrNotFound}

	tests := []struct {
		name    string
		err     error
		want    int
		wantMsg bool
	}{
		{"success", nil, 0, false},
		{"receipt exit code", exitStatus(42), 42, false},
		{"signal projection", exitStatus(137), 137, false},
		{"launch failure", launch, exitLaunchFailed, true},
		{"wrapped launch failure", fmt.Errorf("run: %w", launch), exitLaunchFailed, true},
		{"capture failure", &runner.CaptureError{Stream: "stdout", Err: errors.New("boom")}, exitInternal, true},
		{"write failure", errors.New("writing receipt: permission denied"), exitInternal, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if got := exitCode(tt.err, &stderr); got != tt.want {
				t.Errorf("exitCode = %d, want %d", got, tt.want)
			}
			if gotMsg := stderr.Len() > 0; gotMsg != tt.wantMsg {
				t.Errorf("diagnostic printed = %v, want %v (stderr %q)", gotMsg, tt.wantMsg, stderr.String())
			}
			if tt.wantMsg && !strings.HasPrefix(stderr.String(), "rcpt: ") {
				t.Errorf("diagnostic should be prefixed: %q", stderr.String())
			}
		})
	}
}

func parse(t *testing.T, args ...string) (*CLI, string) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("rcpt"), kong.Exit(func(int) { t.Fatalf("unexpected exit parsing %v", args) }))
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return &cli, kctx.Command()
}

func TestParse_RunPassthrough(t *testing.T) {
	cli, cmd := parse(t, "run", "--out", "out/r.json", "sh", "-c", "exit 3", "--out", "x")
	if !strings.HasPrefix(cmd, "run") {
		t.Fatalf("command = %q, want run", cmd)
	}
	if cli.Run.Out != "out/r.json" {
		t.Errorf("Out = %q, want out/r.json", cli.Run.Out)
	}
	want := []string{"sh", "-c", "exit 3", "--out", "x"}
	if strings.Join(cli.Run.Command, "\x00") != strings.Join(want, "\x00") {
		t.Errorf("Command = %q, want %q", cli.Run.Command, want)
	}
}

func TestParse_RunWithoutOut(t *testing.T) {
	cli, _ := parse(t, "run", "echo", "-n", "hi")
	if cli.Run.Out != "" {
		t.Errorf("Out = %q, want empty", cli.Run.Out)
	}
	if len(cli.Run.Command) != 3 || cli.Run.Command[1] != "-n" {
		t.Errorf("Command = %q, want [echo -n hi]", cli.Run.Command)
	}
}

func TestParse_HistoryDefaultLimit(t *testing.T) {
	cli, _ := parse(t, "history")
	if cli.History.Limit != 10 {
		t.Errorf("Limit = %d, want 10", cli.History.Limit)
	}
}
