//go:build !linux

package sandbox

import "os/exec"

// configureProcessTree has nothing to set outside Linux: the tree is walked
// explicitly when the program has to be stopped.
func configureProcessTree(_ *exec.Cmd) {}

func killProcessTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	killDescendants(int32(cmd.Process.Pid))
	return cmd.Process.Kill()
}
