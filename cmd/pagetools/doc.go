// Package main is the entry point for the PageTools task service.
//
// The service fetches, decodes and analyzes web resources on behalf of the
// desktop shell, reporting progress per task.
//
//	Desktop shell → PageTools → target URLs
//	                          → inference service
//
// The server provides:
//   - REST API for submitting, inspecting and cancelling tasks
//   - WebSocket streaming of task events
//   - Prometheus metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./pagetools -port 8000 -log-level info
//
//	# Development mode (colored logs, debug level)
//	./pagetools -dev
package main
