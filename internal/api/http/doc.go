// Package http exposes the task executor over HTTP for the desktop shell.
//
// Routes:
//
//	POST   /tasks              submit a task, 202 {"id": ...}
//	GET    /tasks              list tracked tasks, newest first
//	GET    /tasks/:id          task snapshot with percent, stage and ETA
//	DELETE /tasks/:id          request cancellation
//	GET    /tasks/:id/events   websocket stream of task events
//	GET    /operations         registered analysis operations
//	GET    /stats              executor, cache and pool summary
//	GET    /health             liveness
//	GET    /metrics            Prometheus exposition
//
// Result data is rendered inline: JSON results as JSON, text results as a
// string, anything else base64 encoded.
package http
