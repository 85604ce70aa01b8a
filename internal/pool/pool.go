// Package pool provides the process-wide bounded worker pool. Submission
// never blocks: a full queue is reported as ErrQueueFull.
package pool

import (
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/pagetools/internal/infrastructure/logging"
)

var (
	// ErrQueueFull is returned when no queue slot is free
	ErrQueueFull = errors.New("worker pool queue is full")
	// ErrStopped is returned after Stop or StopWait
	ErrStopped = errors.New("worker pool is stopped")
)

const DefaultQueueSize = 64

// Pool runs submitted jobs on a fixed number of goroutines
type Pool struct {
	workers int
	queue   chan func()
	wg      sync.WaitGroup
	log     *logging.Logger

	mu      sync.RWMutex
	stopped bool
	quit    chan struct{}

	active atomic.Int32
}

// New starts a pool with the given number of workers and queue capacity
func New(workers, queueSize int, log *logging.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	p := &Pool{
		workers: workers,
		queue:   make(chan func(), queueSize),
		quit:    make(chan struct{}),
		log:     logging.OrNop(log).Named("pool"),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(job)
		}
	}
}

func (p *Pool) run(job func()) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Worker recovered panic",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	job()
}

// Submit queues job without blocking
func (p *Pool) Submit(job func()) error {
	if job == nil {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Workers returns the number of workers
func (p *Pool) Workers() int {
	return p.workers
}

// Active returns the number of jobs currently running
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Queued returns the number of jobs waiting for a worker
func (p *Pool) Queued() int {
	return len(p.queue)
}

// Stop discards queued jobs and waits for running ones. It returns the
// number of jobs discarded.
func (p *Pool) Stop() int {
	if !p.markStopped() {
		return 0
	}

	dropped := 0
drain:
	for {
		select {
		case <-p.queue:
			dropped++
		default:
			break drain
		}
	}

	close(p.quit)
	p.wg.Wait()
	return dropped
}

// StopWait runs every queued job, then stops the workers
func (p *Pool) StopWait() {
	if !p.markStopped() {
		return
	}
	close(p.queue)
	p.wg.Wait()
}

func (p *Pool) markStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.stopped = true
	return true
}

// IsRunning reports whether the pool accepts jobs
func (p *Pool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.stopped
}
