//go:build !linux

package runner

import (
	"time"

	"github.com/Moonlight-Companies/gologger/logger"
)

// Kernel resource limits on the child are only applied on Linux. Elsewhere
// the polling loop is the sole enforcement mechanism.
func applyChildRlimits(pid int, cpuLimit time.Duration, memLimitMiB int, log *logger.Logger) {
	if cpuLimit > 0 || memLimitMiB > 0 {
		log.Debugln("kernel resource limits not supported on this platform")
	}
}
