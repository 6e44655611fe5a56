// Package procgroup samples the set of processes belonging to a process
// group, together with their cumulative CPU time and virtual memory.
//
// Sampling reads the /proc filesystem and is therefore only functional on
// Linux. Reads are inherently racy: a process enumerated from /proc may be
// gone by the time its stat file is opened. Sample treats such processes as
// absent rather than failing, so an empty Group is a normal result for a
// process group that has fully exited.
package procgroup
