package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/pagetools/internal/analysis"
	"github.com/GriffinCanCode/pagetools/internal/executor"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pagetools/internal/shared/id"
	"github.com/GriffinCanCode/pagetools/internal/task"
)

// TaskService is the part of the executor the API drives
type TaskService interface {
	Submit(t task.Task) (id.TaskID, error)
	Cancel(taskID id.TaskID) bool
	Status(taskID id.TaskID) (executor.Snapshot, error)
	List() []executor.Snapshot
	Subscribe(ctx context.Context, taskID id.TaskID) (<-chan task.Event, error)
}

// OperationLister lists registered analysis operations
type OperationLister interface {
	List() []analysis.Operation
}

// Handlers contains all HTTP handlers
type Handlers struct {
	tasks      TaskService
	operations OperationLister
	stats      StatsSource
	metrics    *monitoring.Metrics
	log        *logging.Logger
	started    time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(tasks TaskService, operations OperationLister, metrics *monitoring.Metrics, log *logging.Logger) *Handlers {
	return &Handlers{
		tasks:      tasks,
		operations: operations,
		metrics:    metrics,
		log:        logging.OrNop(log).Named("api"),
		started:    time.Now(),
	}
}

// WithStats attaches the sources summarized by GET /stats
func (h *Handlers) WithStats(s StatsSource) *Handlers {
	h.stats = s
	return h
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/metrics", h.Metrics)
	r.GET("/stats", h.Stats)
	r.GET("/operations", h.ListOperations)

	tasks := r.Group("/tasks")
	tasks.POST("", h.SubmitTask)
	tasks.GET("", h.ListTasks)
	tasks.GET("/:id", h.GetTask)
	tasks.DELETE("/:id", h.CancelTask)
	tasks.GET("/:id/events", h.StreamEvents)
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "PageTools task service",
		"version": "1.0.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": time.Since(h.started).Seconds(),
		"tasks":          h.metrics.Snapshot(),
	})
}

// Metrics serves the Prometheus registry
func (h *Handlers) Metrics(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics disabled"})
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// ListOperations lists the registered analysis operations
func (h *Handlers) ListOperations(c *gin.Context) {
	ops := h.operations.List()
	c.JSON(http.StatusOK, gin.H{
		"operations": ops,
		"count":      len(ops),
	})
}
