// Package cancel provides the cooperative cancellation token shared by all
// stages of one task.
//
// The token is level-triggered: Cancel sets a flag and closes Done. Stages
// poll Cancelled at their check points and use Sleep for interruptible waits.
// Cancellation never aborts an in-flight network call; the call completes or
// times out and the next check point observes the flag.
package cancel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Token is a one-shot cancellation flag with a wake channel
type Token struct {
	mu         sync.Mutex
	cancelled  atomic.Bool
	generation atomic.Uint64
	done       chan struct{}
}

// New creates an uncancelled token
func New() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel sets the flag and wakes all waiters. It reports whether this call
// performed the transition; repeated calls have no effect.
func (t *Token) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled.Load() {
		return false
	}
	t.cancelled.Store(true)
	t.generation.Add(1)
	close(t.done)
	return true
}

// Cancelled reports whether Cancel has been called
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// Done is closed once the token is cancelled
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Generation counts state transitions; 0 while live, 1 once cancelled
func (t *Token) Generation() uint64 {
	return t.generation.Load()
}

// Sleep waits for d, returning early when the token is cancelled or ctx is
// done. It returns true only if the full duration elapsed.
func (t *Token) Sleep(ctx context.Context, d time.Duration) bool {
	if t.Cancelled() {
		return false
	}
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return !t.Cancelled()
	case <-t.done:
		return false
	case <-ctx.Done():
		return false
	}
}
