//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// signalGroup delivers sig to the child's entire process group. Run sets
// Setpgid so the child is the group leader and its pgid equals its pid;
// signaling -pid reaches it and anything it has forked.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := unix.Kill(-pid, sig); err != nil {
		// The group may already be gone (race with natural exit); fall
		// back to signaling the process directly.
		_ = cmd.Process.Signal(sig)
	}
}
