package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"github.com/runlab/runlab/internal/procgroup"
)

const (
	defaultKillDelay    = 5 * time.Second
	defaultPollInterval = 500 * time.Millisecond

	// minWallClockLimit pads the derived wall-clock limit to absorb disk
	// latencies on short CPU limits.
	minWallClockLimit = 30 * time.Second
	wallClockFactor   = 1.5

	// hardLimitFactor is the overrun past the original limit at which a
	// process group that ignored SIGTERM is killed without waiting out the
	// kill delay.
	hardLimitFactor = 1.5

	progressInterval = 5 * time.Second
	sweepDelay       = 100 * time.Millisecond
)

type termState int

const (
	stateRunning termState = iota
	stateTermSent
	stateKillSent
	stateDone
)

// Stream selects where one of the child's standard streams is connected: a
// file path (opened and closed by the runner), a pre-opened file, or, for
// the zero value, the corresponding stream of the supervising process.
type Stream struct {
	Path string
	File *os.File
}

func (s Stream) isSet() bool {
	return s.Path != "" || s.File != nil
}

// Options configures a supervised call. Zero-valued limits are unlimited.
type Options struct {
	// Name identifies the call in log lines. Defaults to the base name of
	// the command.
	Name string

	// CPUTimeLimit bounds the aggregate CPU time of the whole process tree.
	CPUTimeLimit time.Duration

	// WallTimeLimit bounds elapsed real time. When unset while CPUTimeLimit
	// is set it defaults to max(30s, 1.5 * CPUTimeLimit).
	WallTimeLimit time.Duration

	// MemoryLimitMiB bounds the aggregate virtual memory of all live
	// processes in the group, in mebibytes.
	MemoryLimitMiB int

	// KillDelay is the grace period between SIGTERM and SIGKILL.
	KillDelay time.Duration

	// PollInterval is the sampling cadence of the supervision loop.
	PollInterval time.Duration

	Stdin  Stream
	Stdout Stream
	Stderr Stream

	Dir string
	Env []string

	// Log overrides the logger derived from Name.
	Log *logger.Logger
}

// Result describes a completed call.
type Result struct {
	// ExitStatus is 0 on success, the child's exit code when positive, and
	// -N when the child was terminated by signal N.
	ExitStatus int

	CPUTime       time.Duration
	WallClockTime time.Duration
	PeakMemoryMiB float64

	CPUTimeExceeded       bool
	WallClockTimeExceeded bool
	MemoryExceeded        bool
}

// Call supervises a single command and the process tree it spawns.
type Call struct {
	name string
	args []string

	cpuLimit    time.Duration
	wallLimit   time.Duration
	memLimitMiB int

	killDelay    time.Duration
	pollInterval time.Duration

	stdin  Stream
	stdout Stream
	stderr Stream
	dir    string
	env    []string

	log    *logger.Logger
	cmd    *exec.Cmd
	pgid   int
	opened []*os.File
	waitCh chan int

	// Injection points for deterministic tests.
	sample  func(pgid int) procgroup.Group
	sleepFn func(ctx context.Context, d time.Duration) error
	now     func() time.Time

	ledger       *cpuLedger
	state        termState
	termSentAt   time.Time
	started      time.Time
	lastProgress time.Time
	peakMemMiB   float64

	cpuExceeded  bool
	wallExceeded bool
	memExceeded  bool

	result *Result
}

// New validates the command and options and prepares a call. The child is
// not spawned until Start.
func New(args []string, opts Options) (*Call, error) {
	if len(args) == 0 {
		return nil, errors.New("runner: command must not be empty")
	}
	if opts.CPUTimeLimit < 0 {
		return nil, fmt.Errorf("runner: negative cpu time limit %v", opts.CPUTimeLimit)
	}
	if opts.WallTimeLimit < 0 {
		return nil, fmt.Errorf("runner: negative wall-clock time limit %v", opts.WallTimeLimit)
	}
	if opts.MemoryLimitMiB < 0 {
		return nil, fmt.Errorf("runner: negative memory limit %d MiB", opts.MemoryLimitMiB)
	}
	if opts.KillDelay < 0 || opts.PollInterval < 0 {
		return nil, errors.New("runner: kill delay and poll interval must not be negative")
	}

	name := opts.Name
	if name == "" {
		name = filepath.Base(args[0])
	}

	c := &Call{
		name:         name,
		args:         append([]string(nil), args...),
		cpuLimit:     opts.CPUTimeLimit,
		wallLimit:    EffectiveWallLimit(opts.CPUTimeLimit, opts.WallTimeLimit),
		memLimitMiB:  opts.MemoryLimitMiB,
		killDelay:    opts.KillDelay,
		pollInterval: opts.PollInterval,
		stdin:        opts.Stdin,
		stdout:       opts.Stdout,
		stderr:       opts.Stderr,
		dir:          opts.Dir,
		env:          opts.Env,
		log:          opts.Log,
		waitCh:       make(chan int, 1),
		sample:       procgroup.Sample,
		sleepFn:      sleepWithContext,
		now:          time.Now,
		ledger:       newCPULedger(),
	}
	if c.killDelay == 0 {
		c.killDelay = defaultKillDelay
	}
	if c.pollInterval == 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.log == nil {
		c.log = logger.NewLogger(coloransi.Color(coloransi.ColorTeal, coloransi.ColorOrange, name))
	}
	return c, nil
}

// EffectiveWallLimit derives the wall-clock bound from the CPU bound when no
// explicit wall-clock limit is given: max(30s, 1.5 * cpu). Zero means
// unbounded.
func EffectiveWallLimit(cpu, wall time.Duration) time.Duration {
	if wall > 0 {
		return wall
	}
	if cpu == 0 {
		return 0
	}
	derived := time.Duration(float64(cpu) * wallClockFactor)
	if derived < minWallClockLimit {
		derived = minWallClockLimit
	}
	return derived
}

// WallClockTimeLimit returns the effective wall-clock limit, which may have
// been derived from the CPU limit. ok is false when the call is unbounded in
// wall-clock time.
func (c *Call) WallClockTimeLimit() (limit time.Duration, ok bool) {
	return c.wallLimit, c.wallLimit > 0
}

// Start spawns the child as the leader of a new process group and applies
// the kernel resource limits. A start failure (for example a missing
// executable) is returned as-is.
func (c *Call) Start() error {
	cmd := exec.Command(c.args[0], c.args[1:]...)
	cmd.Dir = c.dir
	cmd.Env = c.env

	if err := c.connectStreams(cmd); err != nil {
		c.closeOpened()
		return err
	}
	configureCmdSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		c.closeOpened()
		return fmt.Errorf("start %s: %w", c.name, err)
	}
	c.cmd = cmd
	c.pgid = cmd.Process.Pid
	c.started = c.now()
	c.lastProgress = c.started

	// Bound the child itself at the kernel level. RLIMIT_CPU only covers a
	// single process; the polling loop covers the rest of the tree.
	applyChildRlimits(c.pgid, c.cpuLimit, c.memLimitMiB, c.log)

	go func() {
		c.waitCh <- decodeWaitStatus(cmd.Wait())
	}()
	return nil
}

func (c *Call) connectStreams(cmd *exec.Cmd) error {
	switch {
	case c.stdin.File != nil:
		cmd.Stdin = c.stdin.File
	case c.stdin.Path != "":
		f, err := os.Open(c.stdin.Path)
		if err != nil {
			return fmt.Errorf("open stdin for %s: %w", c.name, err)
		}
		c.opened = append(c.opened, f)
		cmd.Stdin = f
	default:
		cmd.Stdin = os.Stdin
	}

	var err error
	if cmd.Stdout, err = c.outputStream(c.stdout, os.Stdout); err != nil {
		return err
	}
	if cmd.Stderr, err = c.outputStream(c.stderr, os.Stderr); err != nil {
		return err
	}
	return nil
}

func (c *Call) outputStream(sel Stream, inherited *os.File) (*os.File, error) {
	switch {
	case sel.File != nil:
		return sel.File, nil
	case sel.Path != "":
		f, err := os.Create(sel.Path)
		if err != nil {
			return nil, fmt.Errorf("open output for %s: %w", c.name, err)
		}
		c.opened = append(c.opened, f)
		return f, nil
	default:
		return inherited, nil
	}
}

// Run starts the child and supervises it to completion.
func (c *Call) Run(ctx context.Context) (Result, error) {
	if err := c.Start(); err != nil {
		return Result{}, err
	}
	return c.Wait(ctx), nil
}

// Wait polls the process group until the child exits, enforcing the
// configured limits. Cancelling ctx does not abandon the child: it routes
// into the same SIGTERM-then-SIGKILL escalation, and Wait returns once the
// child has been reaped.
func (c *Call) Wait(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	cancelled := ctx.Done()
	for {
		select {
		case status := <-c.waitCh:
			return c.finish(status)
		case <-cancelled:
			cancelled = nil
			c.interrupt()
		case <-time.After(c.pollInterval):
			c.poll()
		}
	}
}

// interrupt reacts to external cancellation of the supervisor itself.
func (c *Call) interrupt() {
	if c.state != stateRunning {
		return
	}
	c.log.Warn(c.name, " interrupted, terminating process group ", c.pgid)
	c.terminateGroup()
	c.state = stateTermSent
	c.termSentAt = c.now()
}

// poll performs one supervision step: sample the group, fold the sample into
// the CPU ledger, then evaluate the limits against the updated totals.
func (c *Call) poll() {
	group := c.sample(c.pgid)
	c.ledger.Update(group)

	cpu := c.cpuTime()
	mem := group.VSizeMiB()
	wall := c.now().Sub(c.started)
	if mem > c.peakMemMiB {
		c.peakMemMiB = mem
	}

	if c.now().Sub(c.lastProgress) >= progressInterval {
		c.lastProgress = c.now()
		c.log.Infoln(fmt.Sprintf("%s running for %.0fs: cpu time %.2fs, memory %.0f MiB",
			c.name, wall.Seconds(), cpu.Seconds(), mem))
	}

	c.recordViolations(cpu, wall, mem)

	switch c.state {
	case stateRunning:
		if c.cpuExceeded || c.wallExceeded || c.memExceeded {
			c.terminateGroup()
			c.state = stateTermSent
			c.termSentAt = c.now()
		}
	case stateTermSent:
		if c.now().Sub(c.termSentAt) >= c.killDelay || c.pastHardLimit(cpu, wall, mem) {
			c.log.Warn(c.name, " did not exit after SIGTERM, killing process group ", c.pgid)
			c.killGroup()
			c.state = stateKillSent
		}
	}
}

// recordViolations latches the per-limit exceeded flags and logs each limit
// the first time it is crossed, naming the measured value and the limit.
func (c *Call) recordViolations(cpu, wall time.Duration, memMiB float64) {
	if c.cpuLimit > 0 && cpu >= c.cpuLimit && !c.cpuExceeded {
		c.cpuExceeded = true
		c.log.Warn(fmt.Sprintf("%s exceeded CPU time limit: measured %.2fs, limit %.2fs",
			c.name, cpu.Seconds(), c.cpuLimit.Seconds()))
	}
	if c.wallLimit > 0 && wall >= c.wallLimit && !c.wallExceeded {
		c.wallExceeded = true
		c.log.Warn(fmt.Sprintf("%s exceeded wall-clock time limit: measured %.2fs, limit %.2fs",
			c.name, wall.Seconds(), c.wallLimit.Seconds()))
	}
	if c.memLimitMiB > 0 && memMiB > float64(c.memLimitMiB) && !c.memExceeded {
		c.memExceeded = true
		c.log.Warn(fmt.Sprintf("%s exceeded memory limit: measured %.0f MiB, limit %d MiB",
			c.name, memMiB, c.memLimitMiB))
	}
}

// pastHardLimit reports whether consumption has overshot any original limit
// by hardLimitFactor, in which case the kill delay is cut short.
func (c *Call) pastHardLimit(cpu, wall time.Duration, memMiB float64) bool {
	if c.cpuLimit > 0 && float64(cpu) >= hardLimitFactor*float64(c.cpuLimit) {
		return true
	}
	if c.wallLimit > 0 && float64(wall) >= hardLimitFactor*float64(c.wallLimit) {
		return true
	}
	if c.memLimitMiB > 0 && memMiB > hardLimitFactor*float64(c.memLimitMiB) {
		return true
	}
	return false
}

// finish is entered once the child has been reaped. It performs the final
// orphan sweep, closes redirected files and freezes the result.
func (c *Call) finish(status int) Result {
	wall := c.now().Sub(c.started)

	group := c.sample(c.pgid)
	c.ledger.Update(group)
	if !group.Empty() {
		c.log.Warn(c.name, " left processes behind: ", group.PIDs())
		c.terminateGroup()
		_ = c.sleepFn(context.Background(), sweepDelay)
	}
	// A final emptiness check would race with process death, so the last
	// kill is sent unconditionally.
	c.killGroup()
	c.state = stateDone

	c.closeOpened()

	res := Result{
		ExitStatus:            status,
		CPUTime:               c.cpuTime(),
		WallClockTime:         wall,
		PeakMemoryMiB:         c.peakMemMiB,
		CPUTimeExceeded:       c.cpuExceeded,
		WallClockTimeExceeded: c.wallExceeded,
		MemoryExceeded:        c.memExceeded,
	}
	c.result = &res

	c.log.Infoln(fmt.Sprintf("%s wall-clock time: %.2fs", c.name, wall.Seconds()))
	c.log.Infoln(c.name, "exit code:", status)
	return res
}

func (c *Call) cpuTime() time.Duration {
	return time.Duration(c.ledger.TotalSeconds() * float64(time.Second))
}

func (c *Call) closeOpened() {
	for _, f := range c.opened {
		// Flush redirected output to disk before the next call starts.
		_ = f.Sync()
		_ = f.Close()
	}
	c.opened = nil
}

// CPUTimeLimitExceeded reports whether the aggregate CPU-time limit
// specifically was crossed, as opposed to the wall-clock or memory limits.
func (c *Call) CPUTimeLimitExceeded() bool {
	return c.cpuExceeded
}

// CPUTime returns the measured aggregate CPU time. ok is false before the
// call has completed.
func (c *Call) CPUTime() (d time.Duration, ok bool) {
	if c.result == nil {
		return 0, false
	}
	return c.result.CPUTime, true
}

// ExitStatus returns the recorded exit status. ok is false before the call
// has completed.
func (c *Call) ExitStatus() (status int, ok bool) {
	if c.result == nil {
		return 0, false
	}
	return c.result.ExitStatus, true
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
