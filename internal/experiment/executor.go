package experiment

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/runlab/runlab/internal/runner"
)

// Executor runs one spec to completion. Implementations must honor
// cancellation of the supplied context by terminating the run.
type Executor interface {
	Execute(ctx context.Context, spec RunSpec) (runner.Result, error)
}

// Factory constructs an executor instance.
type Factory func() Executor

// Registry maps executor names to instances.
type Registry map[string]Executor

type factoryEntry struct {
	name    string
	factory Factory
}

var (
	registryMu       sync.RWMutex
	builtinFactories []factoryEntry
)

// Register associates the provided factory with the executor name. When
// multiple factories register the same name the most recent registration
// wins.
func Register(name string, factory Factory) {
	if name == "" {
		panic("experiment.Register: name must not be empty")
	}
	if factory == nil {
		panic("experiment.Register: factory must not be nil")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	for i, entry := range builtinFactories {
		if entry.name == name {
			builtinFactories[i].factory = factory
			return
		}
	}

	builtinFactories = append(builtinFactories, factoryEntry{name: name, factory: factory})
}

// NewRegistry constructs the default registry containing all registered
// executors.
func NewRegistry() Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()

	reg := make(Registry, len(builtinFactories))
	for _, entry := range builtinFactories {
		reg[entry.name] = entry.factory()
	}
	return reg
}

func init() {
	Register("process", func() Executor { return processExecutor{} })
}

// processExecutor supervises the command directly as a local process
// group.
type processExecutor struct{}

func (processExecutor) Execute(ctx context.Context, spec RunSpec) (runner.Result, error) {
	call, err := runner.New(spec.Command, runner.Options{
		Name:           spec.Name,
		CPUTimeLimit:   spec.CPUTime,
		WallTimeLimit:  spec.WallTime,
		MemoryLimitMiB: spec.MemoryMiB(),
		KillDelay:      spec.KillDelay,
		PollInterval:   spec.PollInterval,
		Stdin:          runner.Stream{Path: spec.Stdin},
		Stdout:         runner.Stream{Path: spec.Stdout},
		Stderr:         runner.Stream{Path: spec.Stderr},
		Dir:            spec.Dir,
		Env:            mergedEnv(spec.Env),
	})
	if err != nil {
		return runner.Result{}, err
	}
	return call.Run(ctx)
}

// mergedEnv layers the spec's variables over the supervisor's own
// environment. A nil spec environment inherits everything unchanged.
func mergedEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, extra[k]))
	}
	return env
}
