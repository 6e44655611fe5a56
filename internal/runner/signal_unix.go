//go:build !windows

package runner

import (
	"errors"
	"os/exec"
	"syscall"
)

func configureCmdSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup delivers sig to the whole process group. A group that no
// longer exists is not an error: the processes we wanted gone are gone.
func (c *Call) signalGroup(sig syscall.Signal) {
	if err := syscall.Kill(-c.pgid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			c.log.Debugln("process group", c.pgid, "already gone")
			return
		}
		c.log.Warn("signal process group ", c.pgid, ": ", err)
	}
}

func (c *Call) terminateGroup() {
	c.signalGroup(syscall.SIGTERM)
}

func (c *Call) killGroup() {
	c.signalGroup(syscall.SIGKILL)
}

// decodeWaitStatus maps the outcome of exec.Cmd.Wait onto the exit-status
// contract: 0 for success, the child's exit code when positive, and the
// negated signal number when the child died from a signal.
func decodeWaitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return -int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return -1
}
