package experiment

import (
	stdcontext "context"
	"sync"
	"time"

	"github.com/runlab/runlab/internal/api"
)

// Tracker folds pool events into run reports for the status server and
// the TUI. Safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	experiment string
	version    string
	runs       map[string]api.RunReport
}

// NewTracker seeds a tracker with one pending report per spec.
func NewTracker(experiment, version string, specs []RunSpec) *Tracker {
	runs := make(map[string]api.RunReport, len(specs))
	for _, spec := range specs {
		runs[spec.Name] = api.RunReport{
			Name:  spec.Name,
			State: api.RunStatePending,
		}
	}
	return &Tracker{experiment: experiment, version: version, runs: runs}
}

// Apply folds a single event into the tracked state.
func (t *Tracker) Apply(evt Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := t.runs[evt.Run]
	report.Name = evt.Run
	if evt.ID != "" {
		report.ID = evt.ID
	}
	report.LastEvent = evt.Timestamp

	switch evt.Type {
	case EventTypeStarted:
		report.State = api.RunStateRunning
		report.StartedAt = evt.Timestamp
	case EventTypeFinished:
		report.State = api.RunStateFinished
		if evt.Result != nil {
			status := evt.Result.ExitStatus
			report.ExitStatus = &status
			report.CPUTimeSeconds = evt.Result.CPUTime.Seconds()
			report.WallClockTimeSeconds = evt.Result.WallClockTime.Seconds()
			report.PeakMemoryMiB = evt.Result.PeakMemoryMiB
			report.CPUTimeExceeded = evt.Result.CPUTimeExceeded
			report.WallClockTimeExceeded = evt.Result.WallClockTimeExceeded
			report.MemoryExceeded = evt.Result.MemoryExceeded
		}
	case EventTypeError:
		report.State = api.RunStateError
		if evt.Err != nil {
			report.Message = evt.Err.Error()
		}
	}

	t.runs[evt.Run] = report
}

// Consume drains the event channel until it closes. Intended to run in
// its own goroutine alongside the pool.
func (t *Tracker) Consume(events <-chan Event) {
	for evt := range events {
		t.Apply(evt)
	}
}

// Status implements api.Controller.
func (t *Tracker) Status(stdcontext.Context) (*api.StatusReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	runs := make(map[string]api.RunReport, len(t.runs))
	for name, report := range t.runs {
		runs[name] = report
	}
	return &api.StatusReport{
		Experiment:  t.experiment,
		Version:     t.version,
		GeneratedAt: time.Now().UTC(),
		Runs:        runs,
	}, nil
}
