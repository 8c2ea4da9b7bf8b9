package sandbox

import (
	"bytes"
	"code-lab/errors"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"time"
)

const truncatedMarker = "\n[output truncated]"

// cappedBuffer keeps the first max bytes written to it and silently drops
// the rest, so that a chatty program can neither exhaust memory nor block on
// a full pipe. A zero max keeps everything.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if c.max <= 0 {
		return c.buf.Write(p)
	}
	remaining := c.max - c.buf.Len()
	if remaining <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		c.buf.Write(p[:remaining])
		c.truncated = true
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) String() string {
	if c.truncated {
		return c.buf.String() + truncatedMarker
	}
	return c.buf.String()
}

// stepResult is what a finished (or killed) process left behind.
type stepResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Failed   bool
	TimedOut bool
}

// step is one bounded process invocation: compile or run.
type step struct {
	dir       string
	argv      []string
	timeout   time.Duration
	waitDelay time.Duration
	maxOutput int
}

// run executes the step. A failing or timed-out program is reported in the
// result; an error means the process could not be spawned at all, or that
// the caller went away.
func (s step) run(ctx context.Context) (stepResult, error) {
	if len(s.argv) == 0 {
		return stepResult{}, fmt.Errorf("%w: empty command", errors.ErrInfrastructure)
	}
	stepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stdout := newCappedBuffer(s.maxOutput)
	stderr := newCappedBuffer(s.maxOutput)
	cmd := exec.CommandContext(stepCtx, s.argv[0], s.argv[1:]...)
	cmd.Dir = s.dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	configureProcessTree(cmd)
	cmd.Cancel = func() error { return killProcessTree(cmd) }
	cmd.WaitDelay = s.waitDelay

	if err := cmd.Start(); err != nil {
		return stepResult{}, fmt.Errorf("%w: cannot start %s: %v", errors.ErrInfrastructure, s.argv[0], err)
	}
	err := cmd.Wait()
	result := stepResult{Stdout: stdout.String(), Stderr: stderr.String()}

	switch {
	case err == nil, stderrors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState.Success():
		return result, nil
	case ctx.Err() != nil:
		return result, ctx.Err()
	case stderrors.Is(stepCtx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.Failed = true
		return result, nil
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		result.Failed = true
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, fmt.Errorf("%w: %s: %v", errors.ErrInfrastructure, s.argv[0], err)
}

// diagnostics prefers what the program wrote on its error stream.
func (r stepResult) diagnostics(what string) string {
	switch {
	case r.Stderr != "":
		return r.Stderr
	case r.Stdout != "":
		return r.Stdout
	default:
		return fmt.Sprintf("%s exited with code %d", what, r.ExitCode)
	}
}
