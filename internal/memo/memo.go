// Package memo provides the bounded memoization cache placed in front of
// analysis operations.
//
// Entries are keyed by a content fingerprint of (operation, payload,
// parameters) and evicted in insertion order once capacity is exceeded.
// Concurrent misses for one key share a single computation; distinct keys
// compute independently. Failed computations are not stored.
package memo

import (
	"container/list"
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/pagetools/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pagetools/internal/shared/hash"
)

// DefaultCapacity is used when a non-positive capacity is requested
const DefaultCapacity = 10

// ComputeFunc produces the value for a missing key
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Stats is a point-in-time view of cache activity
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Computes  uint64 `json:"computes"`
	Evictions uint64 `json:"evictions"`
	Len       int    `json:"len"`
	Capacity  int    `json:"capacity"`
}

type entry struct {
	key   string
	op    string
	value []byte
}

// Cache is a FIFO memoization cache with single-flight computation
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = oldest insertion
	stats    Stats

	group   singleflight.Group
	hasher  *hash.Hasher
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a cache holding at most capacity entries
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		hasher:   hash.DefaultHasher(),
		log:      logging.NewNop(),
	}
}

// WithHasher sets the fingerprint algorithm. Call before first use.
func (c *Cache) WithHasher(h *hash.Hasher) *Cache {
	if h != nil {
		c.hasher = h
	}
	return c
}

// WithLogger sets the logger
func (c *Cache) WithLogger(log *logging.Logger) *Cache {
	c.log = logging.OrNop(log).Named("memo")
	return c
}

// WithMetrics attaches a metrics collector
func (c *Cache) WithMetrics(m *monitoring.Metrics) *Cache {
	c.metrics = m
	return c
}

// Key returns the fingerprint for an operation over payload with params
func (c *Cache) Key(operation string, payload []byte, params map[string]string) string {
	return c.hasher.HashParts(
		[]byte(operation),
		payload,
		[]byte(c.hasher.HashMap(params)),
	)
}

// GetOrCompute returns the cached value for (operation, payload, params),
// computing and storing it on a miss. Callers that miss on the same key
// while a computation is in flight wait for it and share its result,
// including its error. Only the caller that runs compute, or that shares a
// failed computation, counts as a miss; every other caller counts as a hit.
func (c *Cache) GetOrCompute(ctx context.Context, operation string, payload []byte, params map[string]string, compute ComputeFunc) ([]byte, error) {
	key := c.Key(operation, payload, params)

	if v, ok := c.peek(key); ok {
		c.record(operation, true)
		return v, nil
	}

	computed := false
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A concurrent flight may have stored the value since our peek
		if v, ok := c.peek(key); ok {
			return v, nil
		}

		computed = true
		c.mu.Lock()
		c.stats.Computes++
		c.mu.Unlock()

		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, operation, v)
		return v, nil
	})
	c.record(operation, err == nil && !computed)
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Contains reports whether a value is cached, without touching statistics
func (c *Cache) Contains(operation string, payload []byte, params map[string]string) bool {
	_, ok := c.peek(c.Key(operation, payload, params))
	return ok
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity returns the configured capacity
func (c *Cache) Capacity() int {
	return c.capacity
}

// Stats returns a snapshot of cache statistics
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Len = c.order.Len()
	s.Capacity = c.capacity
	return s
}

// Clear drops every entry
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

func (c *Cache) record(operation string, hit bool) {
	c.mu.Lock()
	if hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	c.mu.Unlock()

	c.metrics.CacheLookup(operation, hit)
}

func (c *Cache) peek(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		return el.Value.(*entry).value, true
	}
	return nil, false
}

func (c *Cache) store(key, operation string, value []byte) {
	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return
	}
	c.entries[key] = c.order.PushBack(&entry{key: key, op: operation, value: value})

	var evicted []*entry
	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		e := c.order.Remove(oldest).(*entry)
		delete(c.entries, e.key)
		c.stats.Evictions++
		evicted = append(evicted, e)
	}
	c.mu.Unlock()

	for _, e := range evicted {
		c.metrics.CacheEvicted()
		c.log.Debug("Evicted memo entry",
			zap.String("operation", e.op),
			zap.String("key", e.key[:12]))
	}
}
