package runner

import "fmt"

// LaunchReason classifies why a command could not be started.
type LaunchReason int

const (
	// SpawnFailed means the operating system refused to create the process.
	SpawnFailed LaunchReason = iota
	// NotFound means the command does not exist on PATH or at the given path.
	NotFound
	// PermissionDenied means the command exists but may not be executed.
	PermissionDenied
	// NotExecutable means the command is a directory or not a valid executable format.
	NotExecutable
)

func (r LaunchReason) String() string {
	switch r {
	case NotFound:
		return "not found"
	case PermissionDenied:
		return "permission denied"
	case NotExecutable:
		return "not an executable"
	default:
		return "spawn failed"
	}
}

// LaunchError is returned when no process was started. No timing
// bracket exists for a launch failure.
type LaunchError struct {
	Command string
	Reason  LaunchReason
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s: %s: %v", e.Command, e.Reason, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// CaptureError is returned when reading one of the child's output
// streams failed mid-execution. The captured output is incomplete and
// is discarded.
type CaptureError struct {
	Stream string // "stdout" or "stderr"
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capturing %s: %v", e.Stream, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// WaitError is returned when the process was started but its
// termination status could not be observed.
type WaitError struct {
	Command string
	Err     error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("waiting for %s: %v", e.Command, e.Err)
}

func (e *WaitError) Unwrap() error { return e.Err }
