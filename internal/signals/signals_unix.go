//go:build unix

package signals

import (
	"os"
	"syscall"
)

// ShutdownSignals returns the signals that end a debugging run.
// On Unix this includes SIGTERM and SIGHUP (terminal closed).
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
}
