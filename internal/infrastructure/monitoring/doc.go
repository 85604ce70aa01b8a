/*
Package monitoring provides Prometheus metrics for the task core.

# Overview

Each Metrics value owns a private registry, so several executors (or tests)
can coexist in one process. Every recording method tolerates a nil receiver.

# Metrics

- Tasks: submitted, running, finished by kind/state/error kind, duration
- Fetch: attempts by result, body bytes
- Memo cache: lookups by operation and hit/miss, evictions
- Inference: calls by operation and status, duration
- HTTP API: requests and latency by route template
- Event streams: open websocket connections

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "sentiment_analysis")
	// ... call the backend ...
	timer.Stop("ok")
*/
package monitoring
