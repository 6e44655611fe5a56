//go:build linux

package runner

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/runlab/runlab/internal/procgroup"
)

// spin is a shell fragment that busy-loops until something ends it.
const spin = `while :; do :; done`

// burnCPU is a shell fragment that consumes roughly the given number of
// seconds of CPU time: a subshell busy-loops under its own RLIMIT_CPU and
// SIGXCPU ends it once that much has been burned. Unlike a wall-clock
// bounded loop this measures CPU directly, so it holds on loaded and
// single-core hosts alike.
func burnCPU(seconds int) string {
	return `(ulimit -t ` + strconv.Itoa(seconds) + `; ` + spin + `)`
}

func runShell(t *testing.T, script string, opts Options) (*Call, Result) {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	call, err := New([]string{"/bin/sh", "-c", script}, opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := call.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return call, res
}

func TestNoLimitSucceeds(t *testing.T) {
	call, res := runShell(t, `echo hello`, Options{Name: "no-limit"})
	if res.ExitStatus != 0 {
		t.Errorf("exit status = %d, want 0", res.ExitStatus)
	}
	if call.CPUTimeLimitExceeded() {
		t.Error("cpu limit reported exceeded without a limit")
	}
}

func TestSingleProcessCPUOverrunIsKilled(t *testing.T) {
	// RLIMIT_CPU alone must end a single busy process: the supervisor's
	// aggregate check and the kernel's SIGXCPU race, but either way the
	// process dies from a signal.
	_, res := runShell(t, spin, Options{
		Name:         "single-overrun",
		CPUTimeLimit: time.Second,
	})
	if res.ExitStatus >= 0 {
		t.Errorf("exit status = %d, want signal-terminated", res.ExitStatus)
	}
}

func TestAggregateTreeCPUOverrunDetected(t *testing.T) {
	// Two concurrent busy loops: however many CPUs they share, the group's
	// summed CPU time crosses the limit before either process does on its
	// own. Only ledger aggregation across the group can see that; the
	// supervisor must end the whole tree.
	script := spin + ` & ` + spin
	call, res := runShell(t, script, Options{
		Name:         "tree-overrun",
		CPUTimeLimit: 2 * time.Second,
	})
	if !call.CPUTimeLimitExceeded() {
		t.Error("aggregate cpu overrun not detected")
	}
	if res.ExitStatus >= 0 {
		t.Errorf("exit status = %d, want signal-terminated", res.ExitStatus)
	}
}

func TestMultiGenerationAggregationDetected(t *testing.T) {
	// Three busy loops across three generations: the leader, a nested
	// shell, and that shell's background child. Each stays below the
	// limit individually while the tree's sum crosses it.
	script := `/bin/sh -c '` + spin + ` & ` + spin + `' & ` + spin
	call, _ := runShell(t, script, Options{
		Name:         "generations",
		CPUTimeLimit: 2 * time.Second,
	})
	if !call.CPUTimeLimitExceeded() {
		t.Error("multi-generation cpu overrun not detected")
	}
}

func TestWithinLimitNotTerminated(t *testing.T) {
	call, res := runShell(t, burnCPU(1)+`; exit 0`, Options{
		Name:         "within-limit",
		CPUTimeLimit: 10 * time.Second,
	})
	if res.ExitStatus != 0 {
		t.Errorf("exit status = %d, want 0", res.ExitStatus)
	}
	if call.CPUTimeLimitExceeded() {
		t.Error("cpu limit reported exceeded within budget")
	}
}

func TestShortLivedChildCPUTimeRetained(t *testing.T) {
	// The first child burns ~2s of CPU and exits; a second one then burns
	// ~1s more, so the final sample no longer contains the first. The
	// ledger must still account for it.
	script := burnCPU(2) + `; ` + burnCPU(1) + `; exit 0`
	call, res := runShell(t, script, Options{
		Name:         "short-lived-child",
		CPUTimeLimit: 20 * time.Second,
	})
	if res.ExitStatus != 0 {
		t.Fatalf("exit status = %d, want 0", res.ExitStatus)
	}
	cpu, ok := call.CPUTime()
	if !ok {
		t.Fatal("no cpu time measurement")
	}
	if cpu < 2400*time.Millisecond {
		t.Errorf("cpu time = %v, want >= 2.4s (child's time must not be lost)", cpu)
	}
}

func TestSequentialChildrenAccumulate(t *testing.T) {
	// Two non-overlapping children. A last-sample-wins implementation
	// would report only the second child's time.
	script := burnCPU(2) + `; sleep 1; ` + burnCPU(1) + `; exit 0`
	call, res := runShell(t, script, Options{
		Name:         "sequential-children",
		CPUTimeLimit: 20 * time.Second,
	})
	if res.ExitStatus != 0 {
		t.Fatalf("exit status = %d, want 0", res.ExitStatus)
	}
	cpu, ok := call.CPUTime()
	if !ok {
		t.Fatal("no cpu time measurement")
	}
	if cpu < 2400*time.Millisecond {
		t.Errorf("cpu time = %v, want >= 2.4s (~3s across both children)", cpu)
	}
}

func TestWallClockOverrunWithoutCPULimit(t *testing.T) {
	// Sleeping consumes no CPU, so only the wall-clock bound can fire.
	_, res := runShell(t, `sleep 30`, Options{
		Name:          "wall-overrun",
		WallTimeLimit: time.Second,
	})
	if !res.WallClockTimeExceeded {
		t.Error("wall-clock overrun not reported")
	}
	if res.CPUTimeExceeded {
		t.Error("cpu limit reported exceeded without a cpu limit")
	}
	if res.ExitStatus >= 0 {
		t.Errorf("exit status = %d, want signal-terminated", res.ExitStatus)
	}
}

func TestOrphanSweepClearsStragglers(t *testing.T) {
	// The leader exits immediately, leaving a background sleep in the
	// group. The final sweep must clear it.
	call, err := New([]string{"/bin/sh", "-c", `sleep 30 & exit 0`}, Options{
		Name:         "orphan-sweep",
		PollInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := call.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitStatus != 0 {
		t.Errorf("exit status = %d, want 0", res.ExitStatus)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if procgroup.Sample(call.pgid).Empty() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("orphans survived the sweep: %v", procgroup.Sample(call.pgid).PIDs())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestOutputRedirectedToPath(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "run.log")
	errPath := filepath.Join(dir, "run.err")

	_, res := runShell(t, `echo out; echo err >&2`, Options{
		Name:   "redirect",
		Stdout: Stream{Path: outPath},
		Stderr: Stream{Path: errPath},
	})
	if res.ExitStatus != 0 {
		t.Fatalf("exit status = %d, want 0", res.ExitStatus)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read stdout file: %v", err)
	}
	if strings.TrimSpace(string(out)) != "out" {
		t.Errorf("stdout file = %q, want %q", out, "out")
	}
	errData, err := os.ReadFile(errPath)
	if err != nil {
		t.Fatalf("read stderr file: %v", err)
	}
	if strings.TrimSpace(string(errData)) != "err" {
		t.Errorf("stderr file = %q, want %q", errData, "err")
	}
}

func TestStdinRedirectedFromPath(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "stdin.txt")
	outPath := filepath.Join(dir, "out.txt")
	if err := os.WriteFile(inPath, []byte("payload\n"), 0o644); err != nil {
		t.Fatalf("write stdin file: %v", err)
	}

	_, res := runShell(t, `cat`, Options{
		Name:   "stdin-redirect",
		Stdin:  Stream{Path: inPath},
		Stdout: Stream{Path: outPath},
	})
	if res.ExitStatus != 0 {
		t.Fatalf("exit status = %d, want 0", res.ExitStatus)
	}
	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(out) != "payload\n" {
		t.Errorf("output = %q, want %q", out, "payload\n")
	}
}
