// Package config provides 12-factor configuration management for the
// PageTools service.
//
// Configuration is loaded from environment variables with defaults. CLI flags
// in cmd/pagetools can override the server port and log level.
//
// Configuration Sections:
//   - Server: HTTP listener (port, host)
//   - Executor: worker pool size, queue size, finished task retention
//   - Fetch: default retry policy, timeout, progress tick, body limit
//   - Cache: memo cache capacity and fingerprint algorithm
//   - Inference: inference service URL, token, timeout, operations file
//   - Logging: level and output format
//   - RateLimit: per-IP API rate limiting
//
// The optional operations file is YAML:
//
//	operations:
//	  - name: sentiment_analysis
//	    model: cardiffnlp/twitter-roberta-base-sentiment
//	    input: text
package config
