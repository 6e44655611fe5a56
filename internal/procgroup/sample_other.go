//go:build !linux

package procgroup

// Sample is only implemented on Linux, where /proc exposes per-process CPU
// accounting. On other platforms it reports an empty group.
func Sample(pgid int) Group {
	return Group{PGID: pgid}
}
