package procgroup

import (
	"fmt"
	"strconv"
	"strings"
)

// parseStat extracts the fields of interest from the stat line. The comm
// field can contain spaces and parentheses, so the line is split on the
// first "(" and the last ")" rather than on whitespace.
func parseStat(pid int, stat string) (Process, error) {
	open := strings.Index(stat, "(")
	close := strings.LastIndex(stat, ")")
	if open < 0 || close < 0 || close < open {
		return Process{}, fmt.Errorf("malformed stat line for pid %d", pid)
	}
	fields := strings.Fields(stat[close+1:])
	// Fields after the comm, zero-indexed: state(0) ppid(1) pgrp(2) ...
	// utime(11) stime(12) cutime(13) cstime(14) ... starttime(19) vsize(20).
	if len(fields) < 21 {
		return Process{}, fmt.Errorf("truncated stat line for pid %d", pid)
	}

	proc := Process{PID: pid}
	var err error
	if proc.PPID, err = strconv.Atoi(fields[1]); err != nil {
		return Process{}, fmt.Errorf("pid %d ppid: %w", pid, err)
	}
	if proc.PGID, err = strconv.Atoi(fields[2]); err != nil {
		return Process{}, fmt.Errorf("pid %d pgrp: %w", pid, err)
	}
	for _, field := range []struct {
		index int
		dst   *uint64
	}{
		{11, &proc.UTime},
		{12, &proc.STime},
		{13, &proc.CUTime},
		{14, &proc.CSTime},
		{19, &proc.StartTicks},
		{20, &proc.VSize},
	} {
		v, err := strconv.ParseUint(fields[field.index], 10, 64)
		if err != nil {
			return Process{}, fmt.Errorf("pid %d stat field %d: %w", pid, field.index, err)
		}
		*field.dst = v
	}
	return proc, nil
}

func parseCmdline(data []byte) string {
	s := strings.TrimRight(string(data), "\x00\n")
	return strings.ReplaceAll(s, "\x00", " ")
}
