package experiment

import (
	"time"

	"github.com/runlab/runlab/internal/runner"
)

// EventType captures lifecycle notifications emitted while an experiment
// executes.
type EventType string

const (
	EventTypeStarted  EventType = "started"
	EventTypeFinished EventType = "finished"
	EventTypeError    EventType = "error"
)

// Event represents a single run lifecycle notification.
type Event struct {
	Timestamp time.Time
	Run       string
	ID        string
	Type      EventType
	Err       error

	// Result is set on finished events.
	Result *runner.Result
}

func sendEvent(events chan<- Event, run, id string, t EventType, result *runner.Result, err error) {
	if events == nil {
		return
	}
	events <- Event{
		Timestamp: time.Now(),
		Run:       run,
		ID:        id,
		Type:      t,
		Err:       err,
		Result:    result,
	}
}
