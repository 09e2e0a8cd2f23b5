// Package runner executes a single command, captures both of its output
// streams in full and reports how the process terminated.
package runner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Runner executes commands within a workspace boundary.
type Runner struct {
	// Workspace bounds the working directory of every run. Empty means
	// the current directory and no bound.
	Workspace string
	// Now supplies wall-clock time. Defaults to time.Now.
	Now func() time.Time
}

// Run starts req.Command with req.Args, drains stdout and stderr
// concurrently while waiting for the process, and returns once all
// three have finished. cwd is resolved relative to the workspace and
// must remain within it.
//
// A *LaunchError means no process was started. A *CaptureError or
// *WaitError means the process was started but its result could not
// be observed reliably; no Result is returned in either case.
func (r *Runner) Run(req Request, cwd string) (*Result, error) {
	if req.Command == "" {
		return nil, fmt.Errorf("empty command")
	}

	dir, err := r.resolveDir(cwd)
	if err != nil {
		return nil, err
	}

	path, err := resolveCommand(req.Command, dir)
	if err != nil {
		return nil, newLaunchError(req.Command, err)
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Command: req.Command, Reason: SpawnFailed, Err: err}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, &LaunchError{Command: req.Command, Reason: SpawnFailed, Err: err}
	}

	cmd := exec.Command(path, req.Args...)
	cmd.Args[0] = req.Command
	cmd.Dir = dir
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	start := r.now()
	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, newLaunchError(req.Command, err)
	}
	// The child holds its own copies of the write ends. Closing ours
	// lets the drains observe end-of-stream once the child is done.
	closeAll(stdoutW, stderrW)

	var stdout, stderr bytes.Buffer
	var g errgroup.Group
	g.Go(func() error { return drain("stdout", stdoutR, &stdout) })
	g.Go(func() error { return drain("stderr", stderrR, &stderr) })
	g.Go(func() error { return waitFor(req.Command, cmd.Wait) })

	waitErr := g.Wait()
	end := r.now()
	if waitErr != nil {
		return nil, waitErr
	}
	if cmd.ProcessState == nil {
		return nil, &WaitError{Command: req.Command, Err: errors.New("no process state")}
	}
	if end.Before(start) {
		end = start
	}

	return &Result{
		RunID:   uuid.New().String(),
		Outcome: outcomeOf(cmd.ProcessState),
		Output: Output{
			Stdout: stdout.Bytes(),
			Stderr: stderr.Bytes(),
		},
		Timing: Timing{Start: start, End: end},
	}, nil
}

func (r *Runner) now() time.Time {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	// UTC drops the monotonic reading, so Sub works on wall time only.
	return now().UTC()
}

// resolveDir resolves cwd relative to the workspace and validates it
// is within the workspace boundary.
func (r *Runner) resolveDir(cwd string) (string, error) {
	if r.Workspace == "" {
		return cwd, nil
	}
	if cwd == "" {
		return r.Workspace, nil
	}

	var dir string
	if filepath.IsAbs(cwd) {
		dir = filepath.Clean(cwd)
	} else {
		dir = filepath.Clean(filepath.Join(r.Workspace, cwd))
	}

	rel, err := filepath.Rel(r.Workspace, dir)
	if err != nil {
		return "", fmt.Errorf("resolving cwd: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, r.Workspace)
	}
	return dir, nil
}

// resolveCommand finds the executable for command. Bare names are looked
// up on PATH; anything containing a separator is a path, relative to dir.
func resolveCommand(command, dir string) (string, error) {
	if !strings.ContainsRune(command, filepath.Separator) && !strings.ContainsRune(command, '/') {
		return lookPath(command)
	}

	path := command
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(filepath.Join(dir, path))
		if err != nil {
			return "", err
		}
		// exec evaluates relative paths against cmd.Dir, which is dir.
		path = abs
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory: %w", command, syscall.ENOEXEC)
	}
	if info.Mode()&0o111 == 0 && os.PathSeparator == '/' {
		return "", &fs.PathError{Op: "exec", Path: path, Err: fs.ErrPermission}
	}
	return path, nil
}

// lookPath is exec.LookPath, except that a PATH match without execute
// permission is reported as fs.ErrPermission instead of exec.ErrNotFound.
func lookPath(command string) (string, error) {
	path, err := exec.LookPath(command)
	if err == nil || !errors.Is(err, exec.ErrNotFound) {
		return path, err
	}
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" || !filepath.IsAbs(dir) {
			continue
		}
		candidate := filepath.Join(dir, command)
		info, statErr := os.Stat(candidate)
		if statErr == nil && info.Mode().IsRegular() && info.Mode()&0o111 == 0 {
			return "", &fs.PathError{Op: "exec", Path: candidate, Err: fs.ErrPermission}
		}
	}
	return "", err
}

func newLaunchError(command string, err error) *LaunchError {
	reason := SpawnFailed
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		reason = NotFound
	case errors.Is(err, exec.ErrDot):
		// Found only through a relative PATH entry, which exec refuses.
		reason = NotFound
	case errors.Is(err, fs.ErrPermission):
		reason = PermissionDenied
	case errors.Is(err, syscall.ENOEXEC):
		reason = NotExecutable
	}
	return &LaunchError{Command: command, Reason: reason, Err: err}
}

// drain reads r to end-of-stream into buf and closes r.
func drain(stream string, r io.ReadCloser, buf *bytes.Buffer) error {
	defer r.Close()
	if _, err := buf.ReadFrom(r); err != nil {
		return &CaptureError{Stream: stream, Err: err}
	}
	return nil
}

// waitFor calls wait and reports anything other than a non-zero exit
// as a *WaitError. A non-zero exit is read from the process state.
func waitFor(command string, wait func() error) error {
	err := wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return &WaitError{Command: command, Err: err}
	}
	return nil
}

func outcomeOf(state *os.ProcessState) Outcome {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Signaled{Signal: ws.Signal()}
	}
	return Exited{Code: state.ExitCode()}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
