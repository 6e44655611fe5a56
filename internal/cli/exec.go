package cli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/runlab/runlab/internal/props"
	"github.com/runlab/runlab/internal/resources"
	"github.com/runlab/runlab/internal/runner"
)

func newExecCmd() *cobra.Command {
	var (
		name         string
		cpuTime      time.Duration
		wallTime     time.Duration
		memory       string
		killDelay    time.Duration
		pollInterval time.Duration
		dir          string
		stdinPath    string
		stdoutPath   string
		stderrPath   string
		propsPath    string
	)

	cmd := &cobra.Command{
		Use:   "exec [flags] -- command [args...]",
		Short: "Run a single command under resource limits",
		Long: "exec supervises one command as a process group: CPU time, " +
			"wall-clock time and memory limits apply to the whole tree the " +
			"command spawns. The exit status of runlab mirrors the command's.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memMiB := 0
			if memory != "" {
				bytes, err := resources.ParseMemory(memory)
				if err != nil {
					return err
				}
				memMiB = int(bytes >> 20)
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			call, err := runner.New(args, runner.Options{
				Name:           name,
				CPUTimeLimit:   cpuTime,
				WallTimeLimit:  wallTime,
				MemoryLimitMiB: memMiB,
				KillDelay:      killDelay,
				PollInterval:   pollInterval,
				Stdin:          runner.Stream{Path: stdinPath},
				Stdout:         runner.Stream{Path: stdoutPath},
				Stderr:         runner.Stream{Path: stderrPath},
				Dir:            dir,
			})
			if err != nil {
				return err
			}

			result, err := call.Run(cmd.Context())
			if err != nil {
				return err
			}

			if propsPath != "" {
				pp, err := props.Load(propsPath)
				if err != nil {
					return err
				}
				if err := pp.SaveReturncode(name, result.ExitStatus); err != nil {
					return err
				}
				if err := pp.Write(); err != nil {
					return err
				}
			}

			os.Exit(shellExitCode(result.ExitStatus))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Name used in log lines and property keys (default: command basename)")
	cmd.Flags().DurationVar(&cpuTime, "cpu-time", 0, "Aggregate CPU time limit for the process tree (0 = unlimited)")
	cmd.Flags().DurationVar(&wallTime, "wall-time", 0, "Wall-clock time limit (default derives from --cpu-time)")
	cmd.Flags().StringVar(&memory, "memory", "", "Aggregate memory limit, e.g. 2GiB (0 = unlimited)")
	cmd.Flags().DurationVar(&killDelay, "kill-delay", 0, "Grace period between SIGTERM and SIGKILL")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "Sampling cadence of the supervision loop")
	cmd.Flags().StringVar(&dir, "dir", "", "Working directory for the command")
	cmd.Flags().StringVar(&stdinPath, "stdin", "", "Redirect the command's stdin from this file")
	cmd.Flags().StringVar(&stdoutPath, "stdout", "", "Redirect the command's stdout to this file")
	cmd.Flags().StringVar(&stderrPath, "stderr", "", "Redirect the command's stderr to this file")
	cmd.Flags().StringVar(&propsPath, "properties", "", "Record the outcome in this JSON properties file")

	return cmd
}

// shellExitCode maps the signed exit status convention onto the shell's:
// death by signal N becomes 128+N.
func shellExitCode(status int) int {
	if status < 0 {
		return 128 - status
	}
	return status
}
