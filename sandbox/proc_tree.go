package sandbox

import "github.com/shirou/gopsutil/process"

// killDescendants kills every descendant of pid, deepest first.
// Processes vanishing meanwhile are ignored.
func killDescendants(pid int32) {
	parent, err := process.NewProcess(pid)
	if err != nil {
		return
	}
	children, err := parent.Children()
	if err != nil {
		return
	}
	for _, child := range children {
		killDescendants(child.Pid)
		_ = child.Kill()
	}
}
