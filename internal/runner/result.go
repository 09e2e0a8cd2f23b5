package runner

import (
	"fmt"
	"syscall"
	"time"
)

// Request is the command to execute. It is never mutated by the runner.
type Request struct {
	Command string   // executable name (resolved via PATH) or path
	Args    []string // arguments, may be empty
}

// Result holds everything observed about one finished execution.
type Result struct {
	RunID   string  // unique identifier for this run
	Outcome Outcome // how the process terminated
	Output  Output  // captured streams
	Timing  Timing  // wall-clock bracket around the execution
}

// Output holds the raw bytes captured from the child's output streams.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Timing is the wall-clock bracket of one execution.
// Both times are UTC and carry no monotonic clock reading.
type Timing struct {
	Start time.Time
	End   time.Time
}

// Outcome is the terminal status of a process: either Exited or Signaled.
type Outcome interface {
	fmt.Stringer
	outcome()
}

// Exited reports a process that terminated normally with a numeric code.
type Exited struct {
	Code int
}

func (Exited) outcome() {}

func (e Exited) String() string {
	return fmt.Sprintf("exited with code %d", e.Code)
}

// Signaled reports a process that was terminated by a signal and
// therefore has no exit code of its own.
type Signaled struct {
	Signal syscall.Signal
}

func (Signaled) outcome() {}

func (s Signaled) String() string {
	return "terminated by " + SignalName(s.Signal)
}
