package api

import (
	stdcontext "context"
	"errors"
	"time"
)

var (
	ErrUnknownRun      = errors.New("unknown run")
	ErrNoExperiment    = errors.New("no experiment loaded")
	ErrExperimentEnded = errors.New("experiment already finished")
)

// RunState labels the lifecycle position of a single run.
type RunState string

const (
	RunStatePending  RunState = "pending"
	RunStateRunning  RunState = "running"
	RunStateFinished RunState = "finished"
	RunStateError    RunState = "error"
)

// RunReport describes the observed state of a single run.
type RunReport struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	State     RunState  `json:"state"`
	StartedAt time.Time `json:"started_at"`
	LastEvent time.Time `json:"last_event"`
	Message   string    `json:"message"`

	ExitStatus           *int    `json:"exit_status,omitempty"`
	CPUTimeSeconds       float64 `json:"cpu_time_seconds"`
	WallClockTimeSeconds float64 `json:"wall_clock_time_seconds"`
	PeakMemoryMiB        float64 `json:"peak_memory_mib"`

	CPUTimeExceeded       bool `json:"cpu_time_exceeded"`
	WallClockTimeExceeded bool `json:"wall_clock_time_exceeded"`
	MemoryExceeded        bool `json:"memory_exceeded"`
}

// StatusReport aggregates experiment-wide status information.
type StatusReport struct {
	Experiment  string               `json:"experiment"`
	Version     string               `json:"version"`
	GeneratedAt time.Time            `json:"generated_at"`
	Runs        map[string]RunReport `json:"runs"`
}

// Controller exposes the experiment state required by status servers.
type Controller interface {
	Status(stdcontext.Context) (*StatusReport, error)
}
