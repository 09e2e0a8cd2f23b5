// Package report persists receipts: the receipt file itself and an
// optional history of past runs that can be listed and reloaded.
package report

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deixis/rcpt/internal/receipt"
	"github.com/deixis/rcpt/internal/runner"
)

// ErrNotFound is returned by Load when no entry exists for a run ID.
var ErrNotFound = errors.New("run not found")

// Store persists and retrieves history entries.
type Store interface {
	Save(ctx context.Context, entry *Entry) error
	Load(ctx context.Context, runID string) (*Entry, error)
	List(ctx context.Context, limit int) ([]*Entry, error)
}

// Entry is one recorded run.
type Entry struct {
	RunID      string
	Digest     string // canonical digest of the receipt
	Path       string // where the receipt file was written
	RecordedAt time.Time
	Receipt    *receipt.Receipt
}

// Signal returns the terminating signal of the run, or 0 if the
// process exited normally.
func (e *Entry) Signal() int {
	if s, ok := e.Receipt.Outcome.(runner.Signaled); ok {
		return int(s.Signal)
	}
	return 0
}

// Summary formats the entry as a single history line.
func (e *Entry) Summary() string {
	parts := make([]string, 0, len(e.Receipt.Args)+1)
	parts = append(parts, e.Receipt.Command)
	for _, a := range e.Receipt.Args {
		if a == "" || strings.ContainsAny(a, " \t\n\"'") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return fmt.Sprintf("%s  %s  exit=%-3d  %s",
		e.RunID,
		e.RecordedAt.UTC().Format(time.RFC3339),
		e.Receipt.ExitCode,
		strings.Join(parts, " "))
}
