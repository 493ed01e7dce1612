package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/corey/thoughts/internal/adapters/socket"
)

var errDaemonNotRunning = errors.New("daemon is not running\n" +
	"  → start it:  thoughts daemon start")

// isDBLockError returns true if the error chain contains a bbolt lock timeout.
// bbolt returns the string "timeout" when it cannot acquire the file lock
// within the configured deadline.
func isDBLockError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "timeout")
}

// diagnoseDBLock checks the daemon state and returns actionable guidance
// when a bbolt open fails due to lock contention.
func diagnoseDBLock(root string) string {
	sockPath := socket.SocketPath(root)
	client := socket.NewClient(sockPath)

	if client.Ping() {
		return "ledger is locked by the running daemon\n" +
			"  → stop it first:  thoughts daemon stop\n" +
			"  → then retry your command"
	}

	if _, err := os.Stat(sockPath); err == nil {
		return fmt.Sprintf("ledger is locked, daemon socket exists but is not responding\n"+
			"  → a previous daemon may have crashed\n"+
			"  → find the process:  ps aux | grep 'thoughts daemon'\n"+
			"  → kill it:           kill <PID>\n"+
			"  → clean up socket:   rm %s", sockPath)
	}

	return "ledger is locked by another process\n" +
		"  → find the process:  ps aux | grep 'thoughts'\n" +
		"  → kill it:           kill <PID>\n" +
		"  → then retry your command"
}
