//go:build linux

package procgroup

import (
	"fmt"
	"os"
	"strconv"
)

const procRoot = "/proc"

// Sample enumerates the processes currently belonging to pgid. Processes
// that disappear between enumeration and inspection are skipped.
func Sample(pgid int) Group {
	group := Group{PGID: pgid}
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return group
	}
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		proc, err := readProcess(pid)
		if err != nil {
			// The process exited after the directory listing.
			continue
		}
		if proc.PGID == pgid {
			group.Processes = append(group.Processes, proc)
		}
	}
	return group
}

// readProcess reads /proc/<pid>/stat and /proc/<pid>/cmdline into a Process
// sample. It returns an error for any process whose files cannot be read or
// parsed, which callers treat as "no longer running".
func readProcess(pid int) (Process, error) {
	statData, err := os.ReadFile(fmt.Sprintf("%s/%d/stat", procRoot, pid))
	if err != nil {
		return Process{}, err
	}
	cmdlineData, err := os.ReadFile(fmt.Sprintf("%s/%d/cmdline", procRoot, pid))
	if err != nil {
		return Process{}, err
	}
	proc, err := parseStat(pid, string(statData))
	if err != nil {
		return Process{}, err
	}
	proc.Cmdline = parseCmdline(cmdlineData)
	return proc, nil
}
