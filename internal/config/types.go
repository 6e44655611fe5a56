package config

import (
	"fmt"
	"time"

	"github.com/runlab/runlab/internal/resources"
)

// Duration wraps time.Duration for YAML fields, accepting empty strings.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Document mirrors the experiment manifest structure.
type Document struct {
	Experiment Experiment `yaml:"experiment"`
	Defaults   *Defaults  `yaml:"defaults,omitempty"`
	Runs       []*Run     `yaml:"runs"`
}

// Experiment carries batch-wide settings.
type Experiment struct {
	Name string `yaml:"name"`

	// Parallelism bounds how many runs execute concurrently. Defaults to 1.
	Parallelism int `yaml:"parallelism,omitempty"`

	// Properties is the path of the JSON properties file outcomes are
	// recorded into, resolved relative to the manifest.
	Properties string `yaml:"properties,omitempty"`

	// Listen optionally enables the status/metrics HTTP server.
	Listen string `yaml:"listen,omitempty"`
}

// Defaults are applied to every run that does not override them.
type Defaults struct {
	Executor     string   `yaml:"executor,omitempty"`
	Image        string   `yaml:"image,omitempty"`
	CPUTime      Duration `yaml:"cpuTime,omitempty"`
	WallTime     Duration `yaml:"wallTime,omitempty"`
	Memory       string   `yaml:"memory,omitempty"`
	KillDelay    Duration `yaml:"killDelay,omitempty"`
	PollInterval Duration `yaml:"pollInterval,omitempty"`
}

// Run declares one supervised command.
type Run struct {
	Name    string            `yaml:"name"`
	Command []string          `yaml:"command"`
	Dir     string            `yaml:"dir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	Stdin  string `yaml:"stdin,omitempty"`
	Stdout string `yaml:"stdout,omitempty"`
	Stderr string `yaml:"stderr,omitempty"`

	// Executor selects how the command is run: "process" (default) or
	// "docker".
	Executor string `yaml:"executor,omitempty"`
	// Image is the container image for the docker executor.
	Image string `yaml:"image,omitempty"`
	// CPUs caps container CPU for the docker executor, e.g. "1.5" or "500m".
	CPUs string `yaml:"cpus,omitempty"`

	CPUTime      Duration `yaml:"cpuTime,omitempty"`
	WallTime     Duration `yaml:"wallTime,omitempty"`
	Memory       string   `yaml:"memory,omitempty"`
	KillDelay    Duration `yaml:"killDelay,omitempty"`
	PollInterval Duration `yaml:"pollInterval,omitempty"`

	// MemoryBytes is the parsed value of Memory, filled by ApplyDefaults.
	MemoryBytes int64 `yaml:"-"`
}

// MemoryMiB returns the parsed memory limit in mebibytes.
func (r *Run) MemoryMiB() int {
	return int(r.MemoryBytes >> 20)
}

// ApplyDefaults folds the defaults section into each run and parses memory
// quantities.
func (d *Document) ApplyDefaults() error {
	if d.Experiment.Parallelism == 0 {
		d.Experiment.Parallelism = 1
	}
	if d.Experiment.Properties == "" {
		d.Experiment.Properties = "properties.json"
	}

	def := d.Defaults
	for _, run := range d.Runs {
		if run == nil {
			continue
		}
		if def != nil {
			if run.Executor == "" {
				run.Executor = def.Executor
			}
			if run.Image == "" {
				run.Image = def.Image
			}
			if !run.CPUTime.IsSet() {
				run.CPUTime = def.CPUTime
			}
			if !run.WallTime.IsSet() {
				run.WallTime = def.WallTime
			}
			if run.Memory == "" {
				run.Memory = def.Memory
			}
			if !run.KillDelay.IsSet() {
				run.KillDelay = def.KillDelay
			}
			if !run.PollInterval.IsSet() {
				run.PollInterval = def.PollInterval
			}
		}
		if run.Executor == "" {
			run.Executor = "process"
		}
		if run.Memory != "" {
			bytes, err := resources.ParseMemory(run.Memory)
			if err != nil {
				return fmt.Errorf("run %s: %w", run.Name, err)
			}
			run.MemoryBytes = bytes
		}
	}
	return nil
}
