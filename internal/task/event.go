package task

import (
	"time"

	"github.com/GriffinCanCode/pagetools/internal/shared/id"
)

// State is the executor-visible lifecycle state of a task
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s is absorbing
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Stage names the sub-stage reported in progress events
type Stage string

const (
	StageFetching   Stage = "fetching"
	StageDecoding   Stage = "decoding"
	StageProcessing Stage = "processing"
	StageAnalyzing  Stage = "analyzing"
)

// EventType enumerates the events delivered to subscribers
type EventType string

const (
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
	EventFinished  EventType = "finished"
)

// Terminal reports whether the event carries the outcome
func (t EventType) Terminal() bool {
	return t == EventSucceeded || t == EventFailed || t == EventCancelled
}

// Result is the payload of a successful task
type Result struct {
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
	Attempts  int    `json:"attempts,omitempty"`
}

// Event is a lifecycle or progress notification for one task
type Event struct {
	TaskID    id.TaskID `json:"task_id"`
	Type      EventType `json:"type"`
	Percent   int       `json:"percent,omitempty"`
	Stage     Stage     `json:"stage,omitempty"`
	Result    *Result   `json:"result,omitempty"`
	Error     *Error    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Outcome is the single terminal result of a task
type Outcome struct {
	State  State   `json:"state"`
	Result *Result `json:"result,omitempty"`
	Error  *Error  `json:"error,omitempty"`
}

// Succeeded builds a success outcome
func Succeeded(r *Result) Outcome {
	return Outcome{State: StateSucceeded, Result: r}
}

// Failed builds a failure outcome
func Failed(err *Error) Outcome {
	return Outcome{State: StateFailed, Error: err}
}

// Cancelled builds a cancellation outcome
func Cancelled() Outcome {
	return Outcome{State: StateCancelled}
}

// EventType maps the outcome to its terminal event
func (o Outcome) EventType() EventType {
	switch o.State {
	case StateSucceeded:
		return EventSucceeded
	case StateCancelled:
		return EventCancelled
	default:
		return EventFailed
	}
}

// ETA estimates remaining time from elapsed time and percent complete.
// The second result is false when no estimate is possible yet.
func ETA(elapsed time.Duration, percent int) (time.Duration, bool) {
	if percent <= 0 {
		return 0, false
	}
	if percent >= 100 {
		return 0, true
	}
	return time.Duration(float64(elapsed) * float64(100-percent) / float64(percent)), true
}
