package receipt

import (
	"encoding/json"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/deixis/rcpt/internal/runner"
)

var t0 = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func TestAssemble_Echo(t *testing.T) {
	req := runner.Request{Command: "echo", Args: []string{"Hello, world!"}}
	out := runner.Output{Stdout: []byte("Hello, world!\n")}
	r := Assemble(req, runner.Exited{Code: 0}, out, t0, t0.Add(3*time.Millisecond))

	if r.Command != "echo" {
		t.Errorf("Command = %q, want echo", r.Command)
	}
	if len(r.Args) != 1 || r.Args[0] != "Hello, world!" {
		t.Errorf("Args = %v, want [Hello, world!]", r.Args)
	}
	if r.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", r.ExitCode)
	}
	if r.Stdout != "Hello, world!\n" {
		t.Errorf("Stdout = %q", r.Stdout)
	}
	if r.Stderr != "" {
		t.Errorf("Stderr = %q, want empty", r.Stderr)
	}
	if r.DurationMS != 3 {
		t.Errorf("DurationMS = %d, want 3", r.DurationMS)
	}
}

func TestAssemble_CopiesArgs(t *testing.T) {
	args := []string{"a", "b"}
	r := Assemble(runner.Request{Command: "x", Args: args}, runner.Exited{}, runner.Output{}, t0, t0)
	args[0] = "mutated"
	if r.Args[0] != "a" {
		t.Errorf("Args[0] = %q, want a (receipt must own its args)", r.Args[0])
	}
}

func TestAssemble_EndBeforeStart(t *testing.T) {
	r := Assemble(runner.Request{Command: "x"}, runner.Exited{}, runner.Output{}, t0, t0.Add(-time.Second))
	if r.EndTime.Before(r.StartTime) {
		t.Errorf("EndTime %v before StartTime %v", r.EndTime, r.StartTime)
	}
	if r.DurationMS != 0 {
		t.Errorf("DurationMS = %d, want 0", r.DurationMS)
	}
}

func TestExitCode_Exited(t *testing.T) {
	if got := ExitCode(runner.Exited{Code: 42}); got != 42 {
		t.Errorf("ExitCode(Exited{42}) = %d, want 42", got)
	}
}

func TestExitCode_Signaled(t *testing.T) {
	if got := ExitCode(runner.Signaled{Signal: syscall.SIGKILL}); got != 137 {
		t.Errorf("ExitCode(SIGKILL) = %d, want 137", got)
	}
	if got := ExitCode(runner.Signaled{Signal: syscall.SIGTERM}); got != 143 {
		t.Errorf("ExitCode(SIGTERM) = %d, want 143", got)
	}
}

func TestExitCode_NilOutcomePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("ExitCode(nil) did not panic")
		}
	}()
	ExitCode(nil)
}

func TestAssemble_KeepsOutcome(t *testing.T) {
	r := Assemble(runner.Request{Command: "x"}, runner.Signaled{Signal: syscall.SIGKILL}, runner.Output{}, t0, t0)
	if _, ok := r.Outcome.(runner.Signaled); !ok {
		t.Errorf("Outcome = %v, want Signaled", r.Outcome)
	}
}

func TestDurationMS_Rounding(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int64
	}{
		{0, 0},
		{400 * time.Microsecond, 0},
		{500 * time.Microsecond, 1},
		{900 * time.Microsecond, 1},
		{1499 * time.Microsecond, 1},
		{1500 * time.Microsecond, 2},
		{2 * time.Second, 2000},
	}
	for _, c := range cases {
		if got := DurationMS(t0, t0.Add(c.d)); got != c.want {
			t.Errorf("DurationMS(%v) = %d, want %d", c.d, got, c.want)
		}
	}
}

func TestText_Valid(t *testing.T) {
	if got := Text([]byte("héllo\n")); got != "héllo\n" {
		t.Errorf("Text = %q, want %q", got, "héllo\n")
	}
}

func TestText_InvalidBytes(t *testing.T) {
	got := Text([]byte("ok\xff"))
	if got != "ok�" {
		t.Errorf("Text = %q, want %q", got, "ok�")
	}
}

func TestText_Empty(t *testing.T) {
	if got := Text(nil); got != "" {
		t.Errorf("Text(nil) = %q, want empty", got)
	}
}

func TestMarshal_FieldOrder(t *testing.T) {
	r := Assemble(runner.Request{Command: "echo", Args: []string{"hi"}}, runner.Exited{}, runner.Output{Stdout: []byte("hi\n")}, t0, t0.Add(time.Millisecond))
	data, err := Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)

	fields := []string{"command", "args", "exit_code", "stdout", "stderr", "start_time", "end_time", "duration_ms"}
	last := -1
	for _, f := range fields {
		idx := strings.Index(s, `"`+f+`":`)
		if idx < 0 {
			t.Fatalf("field %s missing in %s", f, s)
		}
		if idx < last {
			t.Errorf("field %s out of order in %s", f, s)
		}
		last = idx
	}
	if strings.Contains(s, "Outcome") || strings.Contains(s, "outcome") {
		t.Errorf("outcome must not be serialized: %s", s)
	}
	if !strings.HasSuffix(s, "}\n") {
		t.Errorf("output should end with a newline: %q", s)
	}
	if !strings.Contains(s, "\n  \"command\": \"echo\"") {
		t.Errorf("output should be indented by two spaces: %s", s)
	}
}

func TestMarshal_EmptyArgs(t *testing.T) {
	r := Assemble(runner.Request{Command: "true"}, runner.Exited{}, runner.Output{}, t0, t0)
	data, err := Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"args": []`) {
		t.Errorf("empty args should encode as [], got %s", data)
	}
}

func TestMarshal_Timestamps(t *testing.T) {
	start := time.Date(2026, 10, 16, 12, 0, 0, 123456789, time.FixedZone("CET", 3600))
	r := Assemble(runner.Request{Command: "x"}, runner.Exited{}, runner.Output{}, start, start.Add(time.Second))
	data, err := Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got := decoded["start_time"]; got != "2026-10-16T11:00:00.123456789Z" {
		t.Errorf("start_time = %v, want 2026-10-16T11:00:00.123456789Z", got)
	}
	if got := decoded["end_time"]; got != "2026-10-16T11:00:01.123456789Z" {
		t.Errorf("end_time = %v, want 2026-10-16T11:00:01.123456789Z", got)
	}
	if got := decoded["duration_ms"]; got != float64(1000) {
		t.Errorf("duration_ms = %v, want 1000", got)
	}
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	r := Assemble(runner.Request{Command: "sh", Args: []string{"-c", "echo a && echo <b>"}}, runner.Exited{}, runner.Output{}, t0, t0)
	data, err := Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), "echo a && echo <b>") {
		t.Errorf("HTML characters were escaped: %s", data)
	}
}

func TestDigest_Deterministic(t *testing.T) {
	r := Assemble(runner.Request{Command: "echo", Args: []string{"x"}}, runner.Exited{}, runner.Output{Stdout: []byte("x\n")}, t0, t0)
	d1, err := Digest(r)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	d2, err := Digest(r)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if d1 != d2 {
		t.Errorf("Digest not deterministic: %s != %s", d1, d2)
	}
	if !strings.HasPrefix(d1, "sha256:") || len(d1) != len("sha256:")+64 {
		t.Errorf("Digest = %q, want sha256:<64 hex>", d1)
	}

	r.ExitCode = 1
	d3, err := Digest(r)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if d3 == d1 {
		t.Error("Digest did not change with the receipt")
	}
}
