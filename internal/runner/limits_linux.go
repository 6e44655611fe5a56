//go:build linux

package runner

import (
	"time"

	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/unix"
)

// rlimitCPUPadding separates the soft CPU limit (SIGXCPU, which a program
// may catch to shut down cleanly) from the hard limit (SIGKILL).
const rlimitCPUPadding = 5

// applyChildRlimits installs kernel limits on the just-started child via
// prlimit, so the CPU and memory caps hold even if the supervisor dies.
// These bound each process individually; tree-wide aggregates are enforced
// by the polling loop. Failures are logged, not fatal: supervision still
// covers the limit.
func applyChildRlimits(pid int, cpuLimit time.Duration, memLimitMiB int, log *logger.Logger) {
	if cpuLimit > 0 {
		soft := uint64((cpuLimit + time.Second - 1) / time.Second)
		setRlimit(pid, unix.RLIMIT_CPU, soft, soft+rlimitCPUPadding, log)
	}
	if memLimitMiB > 0 {
		bytes := uint64(memLimitMiB) << 20
		setRlimit(pid, unix.RLIMIT_AS, bytes, bytes, log)
	}
	setRlimit(pid, unix.RLIMIT_CORE, 0, 0, log)
}

func setRlimit(pid, resource int, soft, hard uint64, log *logger.Logger) {
	limit := unix.Rlimit{Cur: soft, Max: hard}
	if err := unix.Prlimit(pid, resource, &limit, nil); err != nil {
		log.Warn("set resource limit ", resource, " to [", soft, ", ", hard, "]: ", err)
	}
}
