package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/pagetools/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pagetools/internal/memo"
)

// StatsSource provides the figures summarized by GET /stats. Any field may
// be nil.
type StatsSource struct {
	Cache   func() memo.Stats
	Pool    func() PoolStats
	Breaker func() string
}

// PoolStats describes the worker pool
type PoolStats struct {
	Workers int `json:"workers"`
	Active  int `json:"active"`
	Queued  int `json:"queued"`
}

// StatsSnapshot is the JSON body of GET /stats
type StatsSnapshot struct {
	Timestamp     time.Time           `json:"timestamp"`
	UptimeSeconds float64             `json:"uptime_seconds"`
	Tasks         monitoring.Snapshot `json:"tasks"`
	Cache         *memo.Stats         `json:"cache,omitempty"`
	Pool          *PoolStats          `json:"pool,omitempty"`
	Inference     *InferenceStats     `json:"inference,omitempty"`
	Summary       StatsSummary        `json:"summary"`
}

// InferenceStats describes the inference backend client
type InferenceStats struct {
	Breaker string `json:"breaker"`
}

// StatsSummary provides high-level ratios
type StatsSummary struct {
	FailureRate  float64 `json:"failure_rate"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// Stats returns a summary of executor, cache and pool state
func (h *Handlers) Stats(c *gin.Context) {
	snap := StatsSnapshot{
		Timestamp:     time.Now(),
		UptimeSeconds: time.Since(h.started).Seconds(),
		Tasks:         h.metrics.Snapshot(),
	}

	if h.stats.Cache != nil {
		cs := h.stats.Cache()
		snap.Cache = &cs
		if lookups := cs.Hits + cs.Misses; lookups > 0 {
			snap.Summary.CacheHitRate = float64(cs.Hits) / float64(lookups)
		}
	}
	if h.stats.Pool != nil {
		ps := h.stats.Pool()
		snap.Pool = &ps
	}
	if h.stats.Breaker != nil {
		snap.Inference = &InferenceStats{Breaker: h.stats.Breaker()}
	}
	if done := snap.Tasks.Succeeded + snap.Tasks.Failed + snap.Tasks.Cancelled; done > 0 {
		snap.Summary.FailureRate = float64(snap.Tasks.Failed) / float64(done)
	}

	c.JSON(http.StatusOK, snap)
}
