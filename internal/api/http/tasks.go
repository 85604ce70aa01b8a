package http

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/pagetools/internal/executor"
	"github.com/GriffinCanCode/pagetools/internal/pool"
	"github.com/GriffinCanCode/pagetools/internal/shared/id"
	"github.com/GriffinCanCode/pagetools/internal/task"
	"github.com/GriffinCanCode/pagetools/internal/utils"
)

// SubmitRequest is the body of POST /tasks. Exactly one of URL and Payload
// is set; Payload is base64 in JSON.
type SubmitRequest struct {
	URL        string            `json:"url"`
	Payload    []byte            `json:"payload"`
	MediaType  string            `json:"media_type"`
	Kind       string            `json:"kind" binding:"required"`
	Operation  string            `json:"operation"`
	Parameters map[string]string `json:"parameters"`
	Retry      *RetryRequest     `json:"retry"`
	TimeoutMs  int64             `json:"timeout_ms"`
}

// RetryRequest overrides the default retry policy
type RetryRequest struct {
	MaxAttempts    int     `json:"max_attempts"`
	BaseBackoffMs  int64   `json:"base_backoff_ms"`
	JitterFraction float64 `json:"jitter_fraction"`
}

// Task converts the request into a task, rejecting what can never run
func (r SubmitRequest) Task() (task.Task, error) {
	kind, err := task.ParseKind(r.Kind)
	if err != nil {
		return task.Task{}, err
	}

	switch {
	case r.URL != "" && r.Payload != nil:
		return task.Task{}, errors.New("url and payload are mutually exclusive")
	case r.URL == "" && r.Payload == nil:
		return task.Task{}, errors.New("url or payload is required")
	case r.URL != "":
		u, err := url.Parse(r.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return task.Task{}, errors.New("url must be an absolute http(s) URL")
		}
	}
	if err := utils.ValidateOperation(r.Operation); err != nil {
		return task.Task{}, err
	}
	if err := utils.ValidateParameters(r.Parameters); err != nil {
		return task.Task{}, err
	}
	if r.TimeoutMs < 0 {
		return task.Task{}, errors.New("timeout_ms must not be negative")
	}

	t := task.Task{
		URL:        r.URL,
		Payload:    r.Payload,
		MediaType:  r.MediaType,
		Kind:       kind,
		Operation:  r.Operation,
		Parameters: r.Parameters,
		Timeout:    time.Duration(r.TimeoutMs) * time.Millisecond,
	}
	if r.Retry != nil {
		t.Retry = task.RetryPolicy{
			MaxAttempts:    r.Retry.MaxAttempts,
			BaseBackoff:    time.Duration(r.Retry.BaseBackoffMs) * time.Millisecond,
			JitterFraction: r.Retry.JitterFraction,
		}
	}

	// unset fields are filled by the executor; validate what the caller set
	if err := t.WithDefaults(task.DefaultRetryPolicy(), time.Second).Validate(); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

// SubmitTask queues a task
func (h *Handlers) SubmitTask(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, utils.MaxRequestSize)

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := req.Task()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}

	taskID, err := h.tasks.Submit(t)
	switch {
	case errors.Is(err, pool.ErrQueueFull), errors.Is(err, executor.ErrClosed), errors.Is(err, pool.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case errors.Is(err, executor.ErrDuplicateID):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.log.Error("Task submission failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": taskID})
}

// ListTasks lists tracked tasks, newest first
func (h *Handlers) ListTasks(c *gin.Context) {
	snaps := h.tasks.List()
	views := make([]TaskView, 0, len(snaps))
	for _, s := range snaps {
		views = append(views, NewTaskView(s))
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks": views,
		"count": len(views),
	})
}

// GetTask returns a task snapshot
func (h *Handlers) GetTask(c *gin.Context) {
	snap, err := h.tasks.Status(id.TaskID(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, NewTaskView(snap))
}

// CancelTask requests cancellation of a task
func (h *Handlers) CancelTask(c *gin.Context) {
	taskID := id.TaskID(c.Param("id"))
	if _, err := h.tasks.Status(taskID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	cancelled := h.tasks.Cancel(taskID)
	c.JSON(http.StatusAccepted, gin.H{
		"id":        taskID,
		"cancelled": cancelled,
	})
}

func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}
	if kind := task.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	return body
}
