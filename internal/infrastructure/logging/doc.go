// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// Components receive a *Logger and derive scoped children with Named and
// With, so every line about a task carries its task_id.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Named("fetch").Info("attempt failed", zap.Int("attempt", 2), zap.Error(err))
package logging
