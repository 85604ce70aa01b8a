package executor

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/pagetools/internal/cancel"
	"github.com/GriffinCanCode/pagetools/internal/shared/id"
	"github.com/GriffinCanCode/pagetools/internal/task"
)

// Snapshot is the queryable state of a task
type Snapshot struct {
	ID          id.TaskID     `json:"id"`
	Kind        task.Kind     `json:"kind"`
	Operation   string        `json:"operation,omitempty"`
	Target      string        `json:"target"`
	State       task.State    `json:"state"`
	Percent     int           `json:"percent"`
	Stage       task.Stage    `json:"stage,omitempty"`
	ETASeconds  *float64      `json:"eta_seconds,omitempty"`
	Outcome     *task.Outcome `json:"outcome,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}

// run is the mutable state of one submitted task. Events are appended to
// history and wake is closed and replaced on every append so any number of
// subscribers can follow without per-subscriber buffers.
type run struct {
	task  task.Task
	token *cancel.Token
	done  chan struct{}

	mu       sync.Mutex
	st       task.State
	percent  int
	stage    task.Stage
	outcome  *task.Outcome
	history  []task.Event
	wake     chan struct{}
	settled  bool
	reported bool // at least one progress event emitted

	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time
}

func newRun(t task.Task) *run {
	return &run{
		task:        t,
		token:       cancel.New(),
		done:        make(chan struct{}),
		st:          task.StatePending,
		wake:        make(chan struct{}),
		submittedAt: time.Now(),
	}
}

// begin moves Pending to Running and emits Started. It fails if the task was
// cancelled or settled while queued.
func (r *run) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.st != task.StatePending || r.settled || r.token.Cancelled() {
		return false
	}
	r.st = task.StateRunning
	r.startedAt = time.Now()
	r.appendLocked(task.Event{Type: task.EventStarted})
	return true
}

// cancel sets the token if the task is live and reports whether it was
// still pending
func (r *run) cancel() (live, pending bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.settled {
		return false, false
	}
	r.token.Cancel()
	return true, r.st == task.StatePending
}

// progress emits a progress event if it advances the percent or changes the
// stage. An empty stage keeps the current one.
func (r *run) progress(stage task.Stage, pct int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.settled {
		return
	}
	if stage == "" {
		stage = r.stage
	}
	if pct < r.percent {
		pct = r.percent
	}
	if r.reported && pct == r.percent && stage == r.stage {
		return
	}
	if pct > 100 {
		pct = 100
	}

	r.percent = pct
	r.stage = stage
	r.reported = true
	r.appendLocked(task.Event{Type: task.EventProgress, Percent: pct, Stage: stage})
}

// settle records the outcome and emits the terminal event, once
func (r *run) settle(o task.Outcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.settled {
		return false
	}
	r.settled = true
	r.outcome = &o
	r.st = o.State
	r.finishedAt = time.Now()
	r.appendLocked(task.Event{Type: o.EventType(), Result: o.Result, Error: o.Error})
	return true
}

// discard settles a run that was never queued, without emitting anything
func (r *run) discard() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.settled {
		return false
	}
	r.settled = true
	r.token.Cancel()
	return true
}

func (r *run) emit(ev task.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(ev)
}

func (r *run) appendLocked(ev task.Event) {
	ev.TaskID = r.task.ID
	ev.Timestamp = time.Now()
	r.history = append(r.history, ev)
	close(r.wake)
	r.wake = make(chan struct{})
}

func (r *run) subscribe(ctx context.Context) <-chan task.Event {
	ch := make(chan task.Event, 16)

	go func() {
		defer close(ch)
		next := 0
		for {
			r.mu.Lock()
			pending := append([]task.Event(nil), r.history[next:]...)
			wake := r.wake
			r.mu.Unlock()

			for _, ev := range pending {
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
				next++
				if ev.Type == task.EventFinished {
					return
				}
			}

			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (r *run) elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.startedAt
	if start.IsZero() {
		start = r.submittedAt
	}
	end := r.finishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(start)
}

func (r *run) snapshot(now time.Time) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		ID:          r.task.ID,
		Kind:        r.task.Kind,
		Operation:   r.task.Operation,
		Target:      r.task.Target(),
		State:       r.st,
		Percent:     r.percent,
		Stage:       r.stage,
		SubmittedAt: r.submittedAt,
	}
	if !r.startedAt.IsZero() {
		started := r.startedAt
		s.StartedAt = &started
	}
	if r.outcome != nil {
		o := *r.outcome
		s.Outcome = &o
		finished := r.finishedAt
		s.FinishedAt = &finished
	}
	if r.st == task.StateRunning {
		if eta, ok := task.ETA(now.Sub(r.startedAt), r.percent); ok {
			secs := eta.Seconds()
			s.ETASeconds = &secs
		}
	}
	return s
}
