// Package server assembles the PageTools service.
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Initialize logger (production or development) and metrics
//  3. Build the worker pool, fetcher and inference backend client
//  4. Register analysis operations, applying the operations file
//  5. Build the memo cache and the task executor
//  6. Setup HTTP routes and middleware
//  7. Start HTTP server
//  8. Graceful shutdown: stop the listener, cancel live tasks, drain the pool
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
