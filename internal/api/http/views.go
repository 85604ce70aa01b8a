package http

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/pagetools/internal/decode"
	"github.com/GriffinCanCode/pagetools/internal/executor"
	"github.com/GriffinCanCode/pagetools/internal/shared/id"
	"github.com/GriffinCanCode/pagetools/internal/task"
)

// ResultView renders result data inline by media type
type ResultView struct {
	MediaType string      `json:"media_type"`
	Encoding  string      `json:"encoding"`
	Data      interface{} `json:"data"`
	Attempts  int         `json:"attempts,omitempty"`
}

// Result encodings
const (
	EncodingJSON   = "json"
	EncodingText   = "text"
	EncodingBase64 = "base64"
)

// NewResultView picks the inline encoding for r
func NewResultView(r *task.Result) *ResultView {
	if r == nil {
		return nil
	}
	v := &ResultView{MediaType: r.MediaType, Attempts: r.Attempts}
	switch {
	case strings.Contains(strings.ToLower(r.MediaType), "json") && sonic.Valid(r.Data):
		v.Encoding, v.Data = EncodingJSON, json.RawMessage(r.Data)
	case decode.IsText(r.MediaType):
		v.Encoding, v.Data = EncodingText, string(r.Data)
	default:
		// []byte marshals as base64
		v.Encoding, v.Data = EncodingBase64, r.Data
	}
	return v
}

// OutcomeView is the JSON form of task.Outcome
type OutcomeView struct {
	State  task.State  `json:"state"`
	Result *ResultView `json:"result,omitempty"`
	Error  *task.Error `json:"error,omitempty"`
}

// TaskView is the JSON form of an executor snapshot
type TaskView struct {
	ID          id.TaskID    `json:"id"`
	Kind        task.Kind    `json:"kind"`
	Operation   string       `json:"operation,omitempty"`
	Target      string       `json:"target"`
	State       task.State   `json:"state"`
	Percent     int          `json:"percent"`
	Stage       task.Stage   `json:"stage,omitempty"`
	ETASeconds  *float64     `json:"eta_seconds,omitempty"`
	Outcome     *OutcomeView `json:"outcome,omitempty"`
	SubmittedAt time.Time    `json:"submitted_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}

// NewTaskView converts a snapshot
func NewTaskView(s executor.Snapshot) TaskView {
	v := TaskView{
		ID:          s.ID,
		Kind:        s.Kind,
		Operation:   s.Operation,
		Target:      s.Target,
		State:       s.State,
		Percent:     s.Percent,
		Stage:       s.Stage,
		ETASeconds:  s.ETASeconds,
		SubmittedAt: s.SubmittedAt,
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
	}
	if s.Outcome != nil {
		v.Outcome = &OutcomeView{
			State:  s.Outcome.State,
			Result: NewResultView(s.Outcome.Result),
			Error:  s.Outcome.Error,
		}
	}
	return v
}

// EventView is the JSON form of a task event, one websocket message each
type EventView struct {
	TaskID    id.TaskID      `json:"task_id"`
	Type      task.EventType `json:"type"`
	Percent   *int           `json:"percent,omitempty"`
	Stage     task.Stage     `json:"stage,omitempty"`
	Result    *ResultView    `json:"result,omitempty"`
	Error     *task.Error    `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEventView converts an event
// Percent is set on progress events only, including 0.
func NewEventView(ev task.Event) EventView {
	v := EventView{
		TaskID:    ev.TaskID,
		Type:      ev.Type,
		Stage:     ev.Stage,
		Result:    NewResultView(ev.Result),
		Error:     ev.Error,
		Timestamp: ev.Timestamp,
	}
	if ev.Type == task.EventProgress {
		pct := ev.Percent
		v.Percent = &pct
	}
	return v
}
