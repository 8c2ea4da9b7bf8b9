//go:build linux

package sandbox

import (
	"errors"
	"os/exec"
	"syscall"
)

// configureProcessTree starts the program in its own process group so the
// whole group can be signalled at once. Pdeathsig makes the kernel kill the
// program if the server itself dies first.
func configureProcessTree(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

func killProcessTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	// Descendants which moved to another group are not reached by the group signal.
	killDescendants(int32(pid))
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
