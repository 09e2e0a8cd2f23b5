//go:build !unix

package runner

import (
	"fmt"
	"syscall"
)

// SignalName returns a printable name for sig.
func SignalName(sig syscall.Signal) string {
	return fmt.Sprintf("signal %d", int(sig))
}
