// Package experiment executes the runs of an experiment manifest under a
// bounded worker pool, recording every outcome in the properties file.
package experiment

import (
	"time"

	"github.com/runlab/runlab/internal/config"
)

// RunSpec is the executor-facing description of a single run, decoupled
// from the manifest representation.
type RunSpec struct {
	Name    string
	Command []string
	Dir     string
	Env     map[string]string

	// Stdin, Stdout and Stderr are file paths. Empty means the stream of
	// the supervising process is inherited.
	Stdin  string
	Stdout string
	Stderr string

	Executor string
	Image    string
	CPUs     string

	CPUTime      time.Duration
	WallTime     time.Duration
	MemoryBytes  int64
	KillDelay    time.Duration
	PollInterval time.Duration
}

// MemoryMiB returns the memory limit in mebibytes.
func (s RunSpec) MemoryMiB() int {
	return int(s.MemoryBytes >> 20)
}

func buildRunSpec(run *config.Run) RunSpec {
	spec := RunSpec{
		Name:         run.Name,
		Dir:          run.Dir,
		Stdin:        run.Stdin,
		Stdout:       run.Stdout,
		Stderr:       run.Stderr,
		Executor:     run.Executor,
		Image:        run.Image,
		CPUs:         run.CPUs,
		CPUTime:      run.CPUTime.Duration,
		WallTime:     run.WallTime.Duration,
		MemoryBytes:  run.MemoryBytes,
		KillDelay:    run.KillDelay.Duration,
		PollInterval: run.PollInterval.Duration,
	}
	if len(run.Command) > 0 {
		spec.Command = append([]string(nil), run.Command...)
	}
	if len(run.Env) > 0 {
		env := make(map[string]string, len(run.Env))
		for k, v := range run.Env {
			env[k] = v
		}
		spec.Env = env
	}
	return spec
}

// SpecsFromConfig converts the manifest's runs into executor specs.
func SpecsFromConfig(doc *config.Document) []RunSpec {
	specs := make([]RunSpec, 0, len(doc.Runs))
	for _, run := range doc.Runs {
		if run == nil {
			continue
		}
		specs = append(specs, buildRunSpec(run))
	}
	return specs
}
