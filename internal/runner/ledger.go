package runner

import (
	"github.com/runlab/runlab/internal/procgroup"
)

const ticksPerSecond = 100

type ledgerEntry struct {
	startTicks uint64
	cpuTicks   uint64
}

// cpuLedger remembers the highest CPU tick count ever observed for each PID
// that has appeared under a supervised process group. Entries outlive the
// processes they describe, so CPU time consumed by a child that exits
// between two polls is never lost.
type cpuLedger struct {
	entries map[int]ledgerEntry

	// retiredTicks accumulates the totals of entries whose PID was reused by
	// the kernel for an unrelated process. A reused PID is recognised by a
	// changed start time and opens a fresh entry instead of updating the old
	// one.
	retiredTicks uint64
}

func newCPULedger() *cpuLedger {
	return &cpuLedger{entries: make(map[int]ledgerEntry)}
}

// Update folds a fresh sample into the ledger. Per PID the recorded value
// only ever grows: counters that appear to shrink (without a PID reuse) are
// ignored.
func (l *cpuLedger) Update(group procgroup.Group) {
	for _, proc := range group.Processes {
		entry, seen := l.entries[proc.PID]
		if seen && entry.startTicks != proc.StartTicks {
			l.retiredTicks += entry.cpuTicks
			entry = ledgerEntry{startTicks: proc.StartTicks}
		} else if !seen {
			entry = ledgerEntry{startTicks: proc.StartTicks}
		}
		if ticks := proc.CPUTicks(); ticks > entry.cpuTicks {
			entry.cpuTicks = ticks
		}
		l.entries[proc.PID] = entry
	}
}

// TotalSeconds returns the aggregate CPU time of every process ever observed
// under the supervised group, including processes that have since exited.
func (l *cpuLedger) TotalSeconds() float64 {
	ticks := l.retiredTicks
	for _, entry := range l.entries {
		ticks += entry.cpuTicks
	}
	return float64(ticks) / ticksPerSecond
}
