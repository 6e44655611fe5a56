package config

import (
	"errors"
	"fmt"
)

const (
	ExecutorProcess = "process"
	ExecutorDocker  = "docker"
)

// Validate checks the semantic constraints that the JSON schema cannot
// express.
func (d *Document) Validate() error {
	if d.Experiment.Name == "" {
		return errors.New("experiment.name is required")
	}
	if d.Experiment.Parallelism < 1 {
		return fmt.Errorf("experiment.parallelism must be positive, got %d", d.Experiment.Parallelism)
	}
	if len(d.Runs) == 0 {
		return errors.New("at least one run is required")
	}

	seen := make(map[string]struct{}, len(d.Runs))
	for i, run := range d.Runs {
		if run == nil {
			return fmt.Errorf("runs[%d] is empty", i)
		}
		if run.Name == "" {
			return fmt.Errorf("runs[%d].name is required", i)
		}
		if _, dup := seen[run.Name]; dup {
			return fmt.Errorf("duplicate run name %q", run.Name)
		}
		seen[run.Name] = struct{}{}

		if len(run.Command) == 0 {
			return fmt.Errorf("run %s: command is required", run.Name)
		}
		switch run.Executor {
		case ExecutorProcess:
		case ExecutorDocker:
			if run.Image == "" {
				return fmt.Errorf("run %s: docker executor requires an image", run.Name)
			}
		default:
			return fmt.Errorf("run %s: unknown executor %q", run.Name, run.Executor)
		}
		if run.CPUTime.Duration < 0 || run.WallTime.Duration < 0 ||
			run.KillDelay.Duration < 0 || run.PollInterval.Duration < 0 {
			return fmt.Errorf("run %s: limits must not be negative", run.Name)
		}
		if run.MemoryBytes < 0 {
			return fmt.Errorf("run %s: memory limit must not be negative", run.Name)
		}
	}
	return nil
}
