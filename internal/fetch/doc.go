/*
Package fetch downloads a URL with per-attempt timeouts, exponential backoff
with jitter, byte-level progress and cooperative cancellation.

# Attempts

Each attempt first checks the task's cancellation token, waits for the rate
limiter and then issues one GET bounded by a fresh timeout. Failures are
classified with go-retryablehttp's default policy:

  - 429, 5xx (except 501) and transport errors are transient and retried
  - other non-2xx statuses, bad schemes, TLS certificate errors and
    redirect loops fail immediately with network.connection_failed
  - a timeout on the last attempt fails with network.timeout
  - running out of attempts fails with network.retries_exhausted

The wait before attempt n is BaseBackoff * 2^(n-2) * (1 + U(0, jitter)) and
is interrupted by cancellation.

# Progress

With a Content-Length, progress follows the bytes read off the wire. Without
one, the body is read first and then a 100-tick progression runs, checking
the token on every tick. Reported values never decrease across retries.

# Usage

	f := fetch.New(fetch.Config{UserAgent: "PageTools/1.0"}, log)
	resp, err := f.Fetch(ctx, fetch.Request{
		URL:      "https://example.com/data.json",
		Timeout:  10 * time.Second,
		Retry:    task.DefaultRetryPolicy(),
		Token:    token,
		Progress: func(p int) { ... },
	})
*/
package fetch
