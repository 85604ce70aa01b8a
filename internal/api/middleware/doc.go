// Package middleware provides the HTTP middleware of the task API.
//
// Middleware stack includes:
//   - RequestID: tags requests with a uuid, echoed in X-Request-ID
//   - AccessLog: one structured zap line per request
//   - CORS: Cross-origin resource sharing for the desktop shell
//   - RateLimit: Per-IP token bucket rate limiting with idle cleanup
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.AccessLog(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
