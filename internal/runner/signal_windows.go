//go:build windows

package runner

import (
	"errors"
	"os/exec"
)

func configureCmdSysProcAttr(cmd *exec.Cmd) {}

// Without POSIX job control only the direct child can be signalled; any
// grandchildren must be cleaned up by the caller.
func (c *Call) terminateGroup() {
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
}

func (c *Call) killGroup() {
	c.terminateGroup()
}

func decodeWaitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
