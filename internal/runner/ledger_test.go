package runner

import (
	"testing"

	"github.com/runlab/runlab/internal/procgroup"
)

func TestLedgerRetainsVanishedPids(t *testing.T) {
	l := newCPULedger()

	l.Update(procgroup.Group{Processes: []procgroup.Process{
		{PID: 10, StartTicks: 1, UTime: 100},
		{PID: 11, StartTicks: 2, UTime: 80, STime: 20},
	}})
	// PID 11 exits; its last-known value must survive.
	l.Update(procgroup.Group{Processes: []procgroup.Process{
		{PID: 10, StartTicks: 1, UTime: 150},
	}})

	if got := l.TotalSeconds(); got != 2.5 {
		t.Errorf("total = %vs, want 2.5s (150 + 100 ticks)", got)
	}
}

func TestLedgerSequentialChildrenAccumulate(t *testing.T) {
	l := newCPULedger()

	l.Update(procgroup.Group{Processes: []procgroup.Process{
		{PID: 20, StartTicks: 5, UTime: 100},
	}})
	// A later child is a different entry, not an overwrite of the total.
	l.Update(procgroup.Group{Processes: []procgroup.Process{
		{PID: 21, StartTicks: 9, UTime: 50},
	}})

	if got := l.TotalSeconds(); got != 1.5 {
		t.Errorf("total = %vs, want 1.5s", got)
	}
}

func TestLedgerIgnoresShrinkingCounter(t *testing.T) {
	l := newCPULedger()

	l.Update(procgroup.Group{Processes: []procgroup.Process{
		{PID: 30, StartTicks: 7, UTime: 100},
	}})
	l.Update(procgroup.Group{Processes: []procgroup.Process{
		{PID: 30, StartTicks: 7, UTime: 90},
	}})

	if got := l.TotalSeconds(); got != 1.0 {
		t.Errorf("total = %vs, want peak 1.0s", got)
	}
}

func TestLedgerPidReuseOpensFreshEntry(t *testing.T) {
	l := newCPULedger()

	l.Update(procgroup.Group{Processes: []procgroup.Process{
		{PID: 40, StartTicks: 100, UTime: 200},
	}})
	// Same PID, later start time: the kernel recycled the number for an
	// unrelated process. The old total is retired, not overwritten.
	l.Update(procgroup.Group{Processes: []procgroup.Process{
		{PID: 40, StartTicks: 900, UTime: 50},
	}})

	if got := l.TotalSeconds(); got != 2.5 {
		t.Errorf("total = %vs, want 2.5s (200 retired + 50 current ticks)", got)
	}

	l.Update(procgroup.Group{Processes: []procgroup.Process{
		{PID: 40, StartTicks: 900, UTime: 70},
	}})
	if got := l.TotalSeconds(); got != 2.7 {
		t.Errorf("total after growth = %vs, want 2.7s", got)
	}
}

func TestLedgerCountsReapedChildrenTicks(t *testing.T) {
	l := newCPULedger()

	l.Update(procgroup.Group{Processes: []procgroup.Process{
		{PID: 50, StartTicks: 3, UTime: 50, STime: 10, CUTime: 30, CSTime: 10},
	}})

	if got := l.TotalSeconds(); got != 1.0 {
		t.Errorf("total = %vs, want 1.0s including reaped children", got)
	}
}
