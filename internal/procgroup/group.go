package procgroup

// ticksPerSecond is the kernel USER_HZ rate used for the CPU time fields in
// /proc/<pid>/stat.
const ticksPerSecond = 100

const bytesPerMiB = 1 << 20

// Process is a point-in-time sample of one process.
type Process struct {
	PID  int
	PPID int
	PGID int

	// UTime and STime are the cumulative user and system CPU ticks consumed
	// by the process itself. CUTime and CSTime are the corresponding totals
	// for children the process has already reaped.
	UTime  uint64
	STime  uint64
	CUTime uint64
	CSTime uint64

	// StartTicks is the time the process started after boot, in clock ticks.
	// Two samples with the same PID but different StartTicks belong to
	// different processes (the kernel reused the PID).
	StartTicks uint64

	// VSize is the virtual memory size in bytes.
	VSize uint64

	Cmdline string
}

// CPUTicks returns the cumulative CPU ticks attributable to the process:
// its own user and system time plus that of its reaped children.
func (p Process) CPUTicks() uint64 {
	return p.UTime + p.STime + p.CUTime + p.CSTime
}

// CPUTime returns CPUTicks converted to seconds.
func (p Process) CPUTime() float64 {
	return float64(p.CPUTicks()) / ticksPerSecond
}

// VSizeMiB returns the virtual memory size in mebibytes.
func (p Process) VSizeMiB() float64 {
	return float64(p.VSize) / bytesPerMiB
}

// Group is the set of processes that shared a process-group id at one
// sampling instant.
type Group struct {
	PGID      int
	Processes []Process
}

// Empty reports whether no live member of the process group was observed.
func (g Group) Empty() bool {
	return len(g.Processes) == 0
}

// PIDs returns the process ids of all sampled members.
func (g Group) PIDs() []int {
	pids := make([]int, 0, len(g.Processes))
	for _, p := range g.Processes {
		pids = append(pids, p.PID)
	}
	return pids
}

// CPUTime returns the aggregate CPU time of all live members in seconds.
func (g Group) CPUTime() float64 {
	var ticks uint64
	for _, p := range g.Processes {
		ticks += p.CPUTicks()
	}
	return float64(ticks) / ticksPerSecond
}

// VSizeMiB returns the aggregate virtual memory of all live members in
// mebibytes.
func (g Group) VSizeMiB() float64 {
	var bytes uint64
	for _, p := range g.Processes {
		bytes += p.VSize
	}
	return float64(bytes) / bytesPerMiB
}
