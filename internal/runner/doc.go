// Package runner executes one command under CPU-time, wall-clock and memory
// bounds that cover the entire process tree the command spawns.
//
// The child is started as the leader of a fresh process group so that a
// single signal reaches every descendant, forked or spawned. Kernel resource
// limits (RLIMIT_CPU, RLIMIT_AS, RLIMIT_CORE) are applied to the child at
// launch; they bound only each individual process, so the runner additionally
// polls the process group, accumulates CPU time per PID in a ledger that
// survives process death, and escalates from SIGTERM to SIGKILL when an
// aggregate limit is crossed.
//
// Full enforcement requires Linux: process-group sampling reads /proc and
// group signalling relies on POSIX job control. On other platforms the
// runner degrades to supervising the direct child only.
package runner
