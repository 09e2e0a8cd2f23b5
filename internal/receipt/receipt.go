// Package receipt assembles the immutable record of one command
// execution and encodes it as JSON.
package receipt

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deixis/rcpt/internal/runner"
	"github.com/gowebpki/jcs"
	"golang.org/x/text/encoding/unicode"
)

// signalBase is added to a signal number to project a signal
// termination onto a single exit code, as shells do.
const signalBase = 128

// Receipt is the record of one command execution. Field order is part
// of the output format.
type Receipt struct {
	Command    string    `json:"command"`
	Args       []string  `json:"args"`
	ExitCode   int       `json:"exit_code"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	DurationMS int64     `json:"duration_ms"`

	// Outcome keeps the unprojected termination status for diagnostics.
	Outcome runner.Outcome `json:"-"`
}

// Assemble builds a Receipt from a finished execution. It never fails
// for an outcome produced by the runner; a nil outcome is a programming
// error and panics.
func Assemble(req runner.Request, outcome runner.Outcome, out runner.Output, start, end time.Time) *Receipt {
	args := make([]string, len(req.Args))
	copy(args, req.Args)

	start, end = start.UTC(), end.UTC()
	if end.Before(start) {
		end = start
	}

	return &Receipt{
		Command:    req.Command,
		Args:       args,
		ExitCode:   ExitCode(outcome),
		Stdout:     Text(out.Stdout),
		Stderr:     Text(out.Stderr),
		StartTime:  start,
		EndTime:    end,
		DurationMS: DurationMS(start, end),
		Outcome:    outcome,
	}
}

// FromResult is Assemble applied to a runner result.
func FromResult(req runner.Request, res *runner.Result) *Receipt {
	return Assemble(req, res.Outcome, res.Output, res.Timing.Start, res.Timing.End)
}

// ExitCode projects an outcome onto a single integer: the exit code
// itself, or 128 plus the signal number for signal termination. Outcome
// is sealed to Exited and Signaled, so only a nil outcome reaches the
// panic.
func ExitCode(outcome runner.Outcome) int {
	switch o := outcome.(type) {
	case runner.Exited:
		return o.Code
	case runner.Signaled:
		return signalBase + int(o.Signal)
	default:
		panic(fmt.Sprintf("receipt: no exit code for outcome %v", outcome))
	}
}

// DurationMS returns end-start in whole milliseconds, rounded half away
// from zero. A negative interval counts as zero.
func DurationMS(start, end time.Time) int64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return d.Round(time.Millisecond).Milliseconds()
}

// Text decodes b as UTF-8, replacing invalid sequences with U+FFFD.
func Text(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	s, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return string(bytes.ToValidUTF8(b, []byte("\uFFFD")))
	}
	return string(s)
}

// Marshal encodes r as indented JSON terminated by a newline. HTML
// characters are written verbatim.
func Marshal(r *Receipt) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encoding receipt: %w", err)
	}
	return buf.Bytes(), nil
}

// Digest returns the SHA-256 of the RFC 8785 canonical form of r,
// formatted as "sha256:<hex>".
func Digest(r *Receipt) (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding receipt: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalizing receipt: %w", err)
	}
	return hashBytes(canonical), nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}
