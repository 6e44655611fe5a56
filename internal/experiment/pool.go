package experiment

import (
	"context"
	"fmt"
	"sync"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/google/uuid"

	"github.com/runlab/runlab/internal/metrics"
	"github.com/runlab/runlab/internal/props"
	"github.com/runlab/runlab/internal/runner"
)

// Summary aggregates the outcome counts of a finished experiment.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Errored   int
}

// Pool executes runs with bounded parallelism. Each run's outcome is
// appended to the properties file as soon as it completes, so a crash of
// the supervisor itself loses at most the in-flight runs.
type Pool struct {
	Experiment  string
	Parallelism int
	Registry    Registry

	// Props receives one record per completed run. Optional.
	Props *props.Properties

	// Events receives lifecycle notifications. Optional.
	Events chan<- Event

	Log *logger.Logger

	newID func() string

	mu      sync.Mutex
	summary Summary
}

// NewPool prepares a pool for the named experiment.
func NewPool(experiment string, parallelism int, registry Registry) *Pool {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Pool{
		Experiment:  experiment,
		Parallelism: parallelism,
		Registry:    registry,
		Log:         logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorTeal, experiment)),
		newID:       uuid.NewString,
	}
}

// Run executes all specs and blocks until every worker drains. Cancelling
// the context stops dispatching new runs; in-flight runs are terminated
// through their executors. The returned summary covers dispatched runs
// only.
func (p *Pool) Run(ctx context.Context, specs []RunSpec) (Summary, error) {
	jobs := make(chan RunSpec)

	var wg sync.WaitGroup
	for i := 0; i < p.Parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for spec := range jobs {
				p.runOne(ctx, spec)
			}
		}()
	}

dispatch:
	for _, spec := range specs {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- spec:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if p.Props != nil {
		if err := p.Props.Write(); err != nil {
			return p.snapshot(), fmt.Errorf("write properties: %w", err)
		}
	}
	return p.snapshot(), nil
}

func (p *Pool) runOne(ctx context.Context, spec RunSpec) {
	id := p.newID()
	p.Log.Infoln("run", spec.Name, "starting, id", id)
	metrics.RunStarted(p.Experiment)
	sendEvent(p.Events, spec.Name, id, EventTypeStarted, nil, nil)

	exec, ok := p.Registry[spec.Executor]
	if !ok {
		err := fmt.Errorf("unknown executor %q", spec.Executor)
		p.recordError(spec, id, err)
		return
	}

	result, err := exec.Execute(ctx, spec)
	if err != nil {
		p.recordError(spec, id, err)
		return
	}
	p.recordResult(spec, id, result)
}

func (p *Pool) recordResult(spec RunSpec, id string, result runner.Result) {
	metrics.RunCompleted(p.Experiment, result.ExitStatus, result.CPUTime)
	if result.CPUTimeExceeded {
		metrics.LimitViolation(p.Experiment, "cpu_time")
	}
	if result.WallClockTimeExceeded {
		metrics.LimitViolation(p.Experiment, "wall_clock_time")
	}
	if result.MemoryExceeded {
		metrics.LimitViolation(p.Experiment, "memory")
	}

	if p.Props != nil {
		rec := props.RunRecord{
			ID:                    id,
			Name:                  spec.Name,
			ExitStatus:            result.ExitStatus,
			CPUTimeSeconds:        result.CPUTime.Seconds(),
			WallClockTimeSeconds:  result.WallClockTime.Seconds(),
			PeakMemoryMiB:         result.PeakMemoryMiB,
			CPUTimeExceeded:       result.CPUTimeExceeded,
			WallClockTimeExceeded: result.WallClockTimeExceeded,
			MemoryExceeded:        result.MemoryExceeded,
		}
		p.mu.Lock()
		if err := p.Props.RecordRun(rec); err == nil {
			if err := p.Props.Write(); err != nil {
				p.Log.Warn("write properties after run", spec.Name, ":", err)
			}
		} else {
			p.Log.Warn("record run", spec.Name, ":", err)
		}
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.summary.Total++
	if result.ExitStatus == 0 {
		p.summary.Succeeded++
	} else {
		p.summary.Failed++
	}
	p.mu.Unlock()

	p.Log.Infoln("run", spec.Name, "finished, exit status", result.ExitStatus)
	res := result
	sendEvent(p.Events, spec.Name, id, EventTypeFinished, &res, nil)
}

func (p *Pool) recordError(spec RunSpec, id string, err error) {
	p.Log.Warn("run", spec.Name, "failed:", err)
	metrics.RunCompleted(p.Experiment, -1, 0)

	if p.Props != nil {
		p.mu.Lock()
		if perr := p.Props.SaveReturncode(spec.Name, -1); perr != nil {
			p.Log.Warn("record run", spec.Name, ":", perr)
		} else if perr := p.Props.Write(); perr != nil {
			p.Log.Warn("write properties after run", spec.Name, ":", perr)
		}
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.summary.Total++
	p.summary.Errored++
	p.mu.Unlock()

	sendEvent(p.Events, spec.Name, id, EventTypeError, nil, err)
}

func (p *Pool) snapshot() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}
