package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/pagetools/internal/analysis"
	"github.com/GriffinCanCode/pagetools/internal/decode"
	"github.com/GriffinCanCode/pagetools/internal/fetch"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pagetools/internal/memo"
	"github.com/GriffinCanCode/pagetools/internal/pagetext"
	"github.com/GriffinCanCode/pagetools/internal/pool"
	"github.com/GriffinCanCode/pagetools/internal/shared/id"
	"github.com/GriffinCanCode/pagetools/internal/task"
)

var (
	// ErrNotFound is returned for unknown or expired task IDs
	ErrNotFound = errors.New("task not found")
	// ErrClosed is returned by Submit after Close
	ErrClosed = errors.New("executor closed")
	// ErrDuplicateID is returned when a task reuses a live ID
	ErrDuplicateID = errors.New("task id already in use")
)

// Fetcher retrieves remote resources
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (*fetch.Response, error)
}

// Analyzer runs named analysis operations
type Analyzer interface {
	Has(name string) bool
	Invoke(ctx context.Context, name string, payload decode.Payload, params map[string]string) ([]byte, error)
}

// Cache memoizes analysis results
type Cache interface {
	GetOrCompute(ctx context.Context, operation string, payload []byte, params map[string]string, compute memo.ComputeFunc) ([]byte, error)
}

// Submitter accepts jobs without blocking
type Submitter interface {
	Submit(job func()) error
}

// Config holds executor settings
type Config struct {
	// DefaultRetry applies to tasks without a retry policy
	DefaultRetry task.RetryPolicy
	// DefaultTimeout applies to tasks without a per-attempt timeout
	DefaultTimeout time.Duration
	// Retention is how long a finished task stays queryable; 0 keeps it
	Retention time.Duration
}

// Hooks run around every task. After receives the outcome and runs before
// the Finished event.
type Hooks struct {
	Before func(t task.Task)
	After  func(t task.Task, outcome task.Outcome)
}

// Executor runs tasks and tracks their state
type Executor struct {
	cfg      Config
	pool     Submitter
	fetcher  Fetcher
	analyzer Analyzer
	cache    Cache
	hooks    Hooks
	log      *logging.Logger
	metrics  *monitoring.Metrics

	ctx    context.Context
	stop   context.CancelFunc
	active sync.WaitGroup

	mu     sync.RWMutex
	runs   map[id.TaskID]*run
	closed bool
}

// New creates an executor dispatching onto p
func New(cfg Config, p Submitter, f Fetcher, a Analyzer, c Cache, log *logging.Logger) *Executor {
	if cfg.DefaultRetry.IsZero() {
		cfg.DefaultRetry = task.DefaultRetryPolicy()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Second
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Executor{
		cfg:      cfg,
		pool:     p,
		fetcher:  f,
		analyzer: a,
		cache:    c,
		log:      logging.OrNop(log).Named("executor"),
		ctx:      ctx,
		stop:     stop,
		runs:     make(map[id.TaskID]*run),
	}
}

// WithMetrics attaches a metrics collector
func (e *Executor) WithMetrics(m *monitoring.Metrics) *Executor {
	e.metrics = m
	return e
}

// WithHooks sets the before/after hooks
func (e *Executor) WithHooks(h Hooks) *Executor {
	e.hooks = h
	return e
}

// Submit registers t and queues it without blocking. Tasks that fail
// validation are accepted and resolve to a Failed outcome; the returned error
// only reports that the task could not be queued at all.
func (e *Executor) Submit(t task.Task) (id.TaskID, error) {
	t = t.WithDefaults(e.cfg.DefaultRetry, e.cfg.DefaultTimeout)
	if t.ID == "" {
		t.ID = id.NewTaskID()
	}
	t.Parameters = cloneParams(t.Parameters)

	r := newRun(t)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrClosed
	}
	if _, exists := e.runs[t.ID]; exists {
		e.mu.Unlock()
		return "", ErrDuplicateID
	}
	e.runs[t.ID] = r
	e.active.Add(1)
	e.mu.Unlock()

	if err := e.pool.Submit(func() { e.execute(r) }); err != nil {
		e.mu.Lock()
		delete(e.runs, t.ID)
		e.mu.Unlock()
		if r.discard() {
			e.active.Done()
		}

		if errors.Is(err, pool.ErrQueueFull) {
			e.metrics.TaskRejected()
		}
		return "", fmt.Errorf("submit task: %w", err)
	}

	e.metrics.TaskSubmitted(string(t.Kind))
	e.log.Info("Task submitted",
		zap.String("task_id", t.ID.String()),
		zap.String("kind", string(t.Kind)),
		zap.String("operation", t.Operation),
		zap.String("target", t.Target()))
	return t.ID, nil
}

// Cancel requests cancellation. It reports whether the task was still live.
func (e *Executor) Cancel(taskID id.TaskID) bool {
	r, ok := e.lookup(taskID)
	if !ok {
		return false
	}
	live, pending := r.cancel()
	if !live {
		return false
	}

	e.log.Info("Task cancellation requested", zap.String("task_id", taskID.String()))
	if pending {
		// never picked up; resolve now and let the worker skip it
		e.finish(r, task.Cancelled())
	}
	return true
}

// Subscribe streams the events of a task, starting with those already emitted
func (e *Executor) Subscribe(ctx context.Context, taskID id.TaskID) (<-chan task.Event, error) {
	r, ok := e.lookup(taskID)
	if !ok {
		return nil, ErrNotFound
	}
	return r.subscribe(ctx), nil
}

// Wait blocks until the task is finished and returns its outcome
func (e *Executor) Wait(ctx context.Context, taskID id.TaskID) (task.Outcome, error) {
	r, ok := e.lookup(taskID)
	if !ok {
		return task.Outcome{}, ErrNotFound
	}
	select {
	case <-r.done:
		return *r.snapshot(time.Now()).Outcome, nil
	case <-ctx.Done():
		return task.Outcome{}, ctx.Err()
	}
}

// Status returns a snapshot of a task
func (e *Executor) Status(taskID id.TaskID) (Snapshot, error) {
	r, ok := e.lookup(taskID)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return r.snapshot(time.Now()), nil
}

// List returns snapshots of all tracked tasks, newest first
func (e *Executor) List() []Snapshot {
	e.mu.RLock()
	runs := make([]*run, 0, len(e.runs))
	for _, r := range e.runs {
		runs = append(runs, r)
	}
	e.mu.RUnlock()

	now := time.Now()
	out := make([]Snapshot, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.snapshot(now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

// Close stops accepting tasks, cancels every live task and waits for them to
// finish or for ctx to end
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	ids := make([]id.TaskID, 0, len(e.runs))
	for taskID := range e.runs {
		ids = append(ids, taskID)
	}
	e.mu.Unlock()

	for _, taskID := range ids {
		e.Cancel(taskID)
	}
	// abort in-flight calls so shutdown is not bound by network timeouts
	e.stop()

	done := make(chan struct{})
	go func() {
		e.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) lookup(taskID id.TaskID) (*run, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.runs[taskID]
	return r, ok
}

// execute is the worker entry point for one task
func (e *Executor) execute(r *run) {
	if !r.begin() {
		// cancelled while pending
		return
	}
	e.metrics.TaskStarted()
	e.log.Debug("Task started", zap.String("task_id", r.task.ID.String()))
	e.callBefore(r.task)

	outcome := e.perform(r)
	e.metrics.TaskStopped()
	e.finish(r, outcome)
}

// perform runs the stages and maps their result to an outcome. A panic in
// any stage becomes an internal failure.
func (e *Executor) perform(r *run) (outcome task.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("Task panicked",
				zap.String("task_id", r.task.ID.String()),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
			outcome = task.Failed(task.NewError(task.ErrInternal, nil, "task panicked: %v", rec))
		}
	}()

	result, err := e.stages(r)
	switch {
	case err == nil:
		if r.token.Cancelled() {
			return task.Cancelled()
		}
		r.progress("", 100)
		return task.Succeeded(result)
	case errors.Is(err, task.ErrCancelled):
		return task.Cancelled()
	default:
		var te *task.Error
		if !errors.As(err, &te) {
			te = task.NewError(task.ErrInternal, err, "unclassified failure")
		}
		return task.Failed(te)
	}
}

// stage progress ranges: [start, end) of the overall percent
type span struct{ start, end int }

func plan(kind task.Kind) (fetchSpan, decodeSpan, finalSpan span) {
	if kind == task.KindFetch {
		return span{0, 90}, span{90, 100}, span{100, 100}
	}
	return span{0, 60}, span{60, 70}, span{70, 100}
}

func (s span) scale(pct int) int {
	return s.start + (s.end-s.start)*pct/100
}

func (e *Executor) stages(r *run) (*task.Result, error) {
	t := r.task
	if err := t.Validate(); err != nil {
		return nil, err
	}
	fetchSpan, decodeSpan, finalSpan := plan(t.Kind)
	ctx := e.ctx

	// fetching
	if r.token.Cancelled() {
		return nil, task.ErrCancelled
	}
	var (
		raw       []byte
		mediaType string
		attempts  int
	)
	if t.HasPayload() {
		raw, mediaType = t.Payload, t.MediaType
	} else {
		r.progress(task.StageFetching, fetchSpan.start)
		resp, err := e.fetcher.Fetch(ctx, fetch.Request{
			URL:     t.URL,
			Timeout: t.Timeout,
			Retry:   t.Retry,
			Token:   r.token,
			Progress: func(pct int) {
				// 100 is reserved for success
				if p := fetchSpan.scale(pct); p < 100 {
					r.progress(task.StageFetching, p)
				}
			},
		})
		if err != nil {
			return nil, err
		}
		raw, mediaType, attempts = resp.Body, resp.MediaType, resp.Attempts
	}

	// decoding
	if r.token.Cancelled() {
		return nil, task.ErrCancelled
	}
	r.progress(task.StageDecoding, decodeSpan.start)
	payload, err := decode.Decode(raw, mediaType)
	if err != nil {
		return nil, err
	}

	if r.token.Cancelled() {
		return nil, task.ErrCancelled
	}

	switch t.Kind {
	case task.KindFetch:
		return &task.Result{MediaType: payload.MediaType, Data: payload.Data, Attempts: attempts}, nil

	case task.KindProcess:
		r.progress(task.StageProcessing, finalSpan.start)
		doc, err := pagetext.Extract(payload)
		if err != nil {
			return nil, task.NewError(task.ErrBackendFailure, err, "process payload")
		}
		data, err := sonic.Marshal(doc)
		if err != nil {
			return nil, task.NewError(task.ErrInternal, err, "encode document")
		}
		return &task.Result{MediaType: "application/json", Data: data, Attempts: attempts}, nil

	case task.KindAnalyze:
		r.progress(task.StageAnalyzing, finalSpan.start)
		if !e.analyzer.Has(t.Operation) {
			return nil, task.NewError(task.ErrUnknownOperation, nil, "unknown operation %q", t.Operation)
		}
		out, err := e.analyze(ctx, t, payload)
		if err != nil {
			return nil, err
		}
		return &task.Result{MediaType: "application/json", Data: out, Attempts: attempts}, nil
	}

	return nil, task.NewError(task.ErrUnknownKind, nil, "unknown task kind %q", t.Kind)
}

func (e *Executor) analyze(ctx context.Context, t task.Task, payload decode.Payload) ([]byte, error) {
	compute := func(ctx context.Context) ([]byte, error) {
		return e.analyzer.Invoke(ctx, t.Operation, payload, t.Parameters)
	}
	if e.cache == nil {
		return compute(ctx)
	}
	return e.cache.GetOrCompute(ctx, t.Operation, payload.Fingerprint(), t.Parameters, compute)
}

// finish records the outcome once, emits the terminal and Finished events
// and schedules removal
func (e *Executor) finish(r *run, outcome task.Outcome) {
	if !r.settle(outcome) {
		return
	}

	t := r.task
	fields := []zap.Field{
		zap.String("task_id", t.ID.String()),
		zap.String("state", string(outcome.State)),
	}
	errKind := ""
	if outcome.Error != nil {
		errKind = string(outcome.Error.Kind)
		fields = append(fields, zap.String("error_kind", errKind), zap.String("error", outcome.Error.Error()))
	}
	e.log.Info("Task finished", fields...)
	e.metrics.TaskFinished(string(t.Kind), string(outcome.State), errKind, r.elapsed())

	e.callAfter(t, outcome)
	r.emit(task.Event{Type: task.EventFinished})
	close(r.done)
	e.active.Done()

	if e.cfg.Retention > 0 {
		time.AfterFunc(e.cfg.Retention, func() {
			e.mu.Lock()
			if e.runs[t.ID] == r {
				delete(e.runs, t.ID)
			}
			e.mu.Unlock()
		})
	}
}

func (e *Executor) callBefore(t task.Task) {
	if e.hooks.Before == nil {
		return
	}
	defer e.recoverHook("before", t)
	e.hooks.Before(t)
}

func (e *Executor) callAfter(t task.Task, o task.Outcome) {
	if e.hooks.After == nil {
		return
	}
	defer e.recoverHook("after", t)
	e.hooks.After(t, o)
}

func (e *Executor) recoverHook(name string, t task.Task) {
	if rec := recover(); rec != nil {
		e.log.Error("Task hook panicked",
			zap.String("hook", name),
			zap.String("task_id", t.ID.String()),
			zap.Any("panic", rec))
	}
}

func cloneParams(p map[string]string) map[string]string {
	if len(p) == 0 {
		return nil
	}
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// interface checks
var (
	_ Fetcher   = (*fetch.Fetcher)(nil)
	_ Analyzer  = (*analysis.Registry)(nil)
	_ Cache     = (*memo.Cache)(nil)
	_ Submitter = (*pool.Pool)(nil)
)
