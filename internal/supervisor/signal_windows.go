//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// signalGroup on Windows has no process-group signaling primitive exposed
// through golang.org/x/sys/unix; fall back to killing the process itself.
func signalGroup(cmd *exec.Cmd, _ syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
