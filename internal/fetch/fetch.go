package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/pagetools/internal/cancel"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pagetools/internal/task"
)

const (
	// DefaultMaxBodyBytes caps a response body at 32MB
	DefaultMaxBodyBytes = 32 << 20

	// DefaultTickInterval paces the progression used when the length is unknown
	DefaultTickInterval = 10 * time.Millisecond

	// DefaultUserAgent identifies the fetcher
	DefaultUserAgent = "PageTools/1.0"

	ticks     = 100
	chunkSize = 32 << 10
)

// ProgressFunc receives percent complete in [0,100]
type ProgressFunc func(percent int)

// Sleeper waits before a retry. It returns false if the wait was interrupted.
type Sleeper func(ctx context.Context, token *cancel.Token, d time.Duration) bool

// Config configures a Fetcher
type Config struct {
	UserAgent         string
	MaxBodyBytes      int64
	RequestsPerSecond float64
	TickInterval      time.Duration
}

// Request describes one fetch
type Request struct {
	URL      string
	Timeout  time.Duration
	Retry    task.RetryPolicy
	Token    *cancel.Token
	Progress ProgressFunc
}

// Response is a fetched body
type Response struct {
	Body       []byte
	MediaType  string
	StatusCode int
	Attempts   int
}

// Fetcher performs retried GET requests
type Fetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	cfg     Config
	log     *logging.Logger
	metrics *monitoring.Metrics
	sleep   Sleeper
	jitter  func() float64
}

// New creates a fetcher over a pooled transport
func New(cfg Config, log *logging.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.TickInterval < 0 {
		cfg.TickInterval = 0
	}
	log = logging.OrNop(log).Named("fetch")

	// Pooled transport from go-retryablehttp; attempts are driven here
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	restyClient := resty.New().
		SetTransport(retryClient.HTTPClient.Transport).
		SetHeader("User-Agent", cfg.UserAgent).
		SetLogger(log.Sugar())

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Fetcher{
		client:  restyClient,
		limiter: limiter,
		cfg:     cfg,
		log:     log,
		sleep: func(ctx context.Context, token *cancel.Token, d time.Duration) bool {
			return token.Sleep(ctx, d)
		},
		jitter: rand.Float64,
	}
}

// WithMetrics attaches a metrics collector
func (f *Fetcher) WithMetrics(m *monitoring.Metrics) *Fetcher {
	f.metrics = m
	return f
}

// WithSleeper replaces the backoff wait
func (f *Fetcher) WithSleeper(s Sleeper) *Fetcher {
	f.sleep = s
	return f
}

// WithJitter replaces the jitter source; fn must return values in [0,1)
func (f *Fetcher) WithJitter(fn func() float64) *Fetcher {
	f.jitter = fn
	return f
}

// Fetch downloads req.URL. Cancellation observed at any check point returns
// task.ErrCancelled; every other failure is a *task.Error.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	policy := req.Retry
	if policy.IsZero() {
		policy = task.DefaultRetryPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, task.NewError(task.ErrInvalidPolicy, err, "invalid retry policy")
	}
	if req.Timeout <= 0 {
		return nil, task.NewError(task.ErrInvalidPolicy, nil, "timeout must be positive")
	}
	token := req.Token
	if token == nil {
		token = cancel.New()
	}
	progress := newReporter(req.Progress)

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if token.Cancelled() {
			return nil, task.ErrCancelled
		}

		if attempt > 1 {
			backoff := policy.Backoff(attempt, f.jitter())
			f.log.Info("Retrying fetch",
				zap.String("url", req.URL),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			if !f.sleep(ctx, token, backoff) {
				return nil, stopped(ctx, token)
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return nil, stopped(ctx, token)
		}

		resp, err := f.attempt(ctx, req.URL, req.Timeout, token, progress)
		if err == nil {
			f.metrics.FetchAttempt("ok")
			resp.Attempts = attempt
			return resp, nil
		}
		if errors.Is(err, task.ErrCancelled) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, stopped(ctx, token)
		}

		var ae *attemptError
		if !errors.As(err, &ae) {
			ae = &attemptError{err: err}
		}
		if ae.permanent {
			f.metrics.FetchAttempt("error")
			return nil, task.NewError(task.ErrConnectionFailed, ae.err, "fetch %s", req.URL)
		}
		if ae.timeout && attempt == policy.MaxAttempts {
			f.metrics.FetchAttempt("timeout")
			return nil, task.NewError(task.ErrTimeout, ae.err, "fetch %s timed out after %s", req.URL, req.Timeout)
		}

		f.metrics.FetchAttempt("retry")
		lastErr = ae.err
	}

	return nil, task.NewError(task.ErrRetriesExhausted, lastErr,
		"fetch %s failed after %d attempts", req.URL, policy.MaxAttempts)
}

// stopped maps an interrupted wait to its cause
func stopped(ctx context.Context, token *cancel.Token) error {
	if token.Cancelled() {
		return task.ErrCancelled
	}
	return fmt.Errorf("%w: %v", task.ErrCancelled, ctx.Err())
}

// attemptError classifies one failed attempt
type attemptError struct {
	err       error
	timeout   bool
	permanent bool
}

func (e *attemptError) Error() string { return e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

func (f *Fetcher) attempt(ctx context.Context, url string, timeout time.Duration, token *cancel.Token, progress *reporter) (*Response, error) {
	actx, cancelAttempt := context.WithTimeout(ctx, timeout)
	defer cancelAttempt()

	r, err := f.client.R().
		SetContext(actx).
		SetDoNotParseResponse(true).
		SetHeader("Accept-Encoding", acceptEncoding).
		Get(url)
	if err != nil {
		return nil, f.classify(ctx, actx, nil, err)
	}

	raw := r.RawBody()
	if raw == nil {
		raw = http.NoBody
	}
	defer raw.Close()

	status := r.StatusCode()
	if status < 200 || status > 299 {
		statusErr := fmt.Errorf("unexpected HTTP status %s", r.Status())
		return nil, f.classify(ctx, actx, r.RawResponse, statusErr)
	}

	counter := &countingReader{r: raw}
	body, err := decompress(counter, r.Header().Get("Content-Encoding"))
	if err != nil {
		return nil, &attemptError{err: err, permanent: true}
	}
	defer body.Close()

	length := r.RawResponse.ContentLength
	data, err := f.readBody(actx, body, counter, length, token, progress)
	if err != nil {
		if errors.Is(err, task.ErrCancelled) {
			return nil, err
		}
		var ae *attemptError
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, f.classify(ctx, actx, nil, err)
	}

	if length < 0 {
		if err := f.simulate(ctx, token, progress); err != nil {
			return nil, err
		}
	}
	progress.report(100)

	return &Response{
		Body:       data,
		MediaType:  r.Header().Get("Content-Type"),
		StatusCode: status,
	}, nil
}

// readBody reads the decoded body in chunks, checking the token and
// reporting byte progress between chunks
func (f *Fetcher) readBody(actx context.Context, body io.Reader, counter *countingReader, length int64, token *cancel.Token, progress *reporter) ([]byte, error) {
	buf := make([]byte, chunkSize)
	var data []byte
	for {
		if token.Cancelled() {
			return nil, task.ErrCancelled
		}

		n, err := body.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			f.metrics.FetchBytesRead(n)
			if int64(len(data)) > f.cfg.MaxBodyBytes {
				return nil, &attemptError{
					err:       fmt.Errorf("body exceeds %d bytes", f.cfg.MaxBodyBytes),
					permanent: true,
				}
			}
			if length > 0 {
				// 100 is reserved for completion
				pct := int(counter.n * 100 / length)
				if pct > 99 {
					pct = 99
				}
				progress.report(pct)
			}
		}
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			if actx.Err() == context.DeadlineExceeded {
				return nil, &attemptError{err: err, timeout: true}
			}
			return nil, err
		}
	}
}

// simulate advances progress over a fixed number of ticks when the body
// length was not known
func (f *Fetcher) simulate(ctx context.Context, token *cancel.Token, progress *reporter) error {
	for i := 1; i < ticks; i++ {
		if token.Cancelled() {
			return task.ErrCancelled
		}
		progress.report(i)
		if f.cfg.TickInterval > 0 && !token.Sleep(ctx, f.cfg.TickInterval) {
			return stopped(ctx, token)
		}
	}
	if token.Cancelled() {
		return task.ErrCancelled
	}
	return nil
}

// classify decides whether a failed attempt may be retried
func (f *Fetcher) classify(ctx, actx context.Context, resp *http.Response, err error) error {
	if ctx.Err() == nil && actx.Err() == context.DeadlineExceeded {
		return &attemptError{err: err, timeout: true}
	}

	var reqErr error
	if resp == nil {
		reqErr = err
	}
	retry, _ := retryablehttp.DefaultRetryPolicy(ctx, resp, reqErr)
	return &attemptError{err: err, permanent: !retry}
}

// reporter forwards progress, dropping values that would go backwards
type reporter struct {
	fn   ProgressFunc
	last int
}

func newReporter(fn ProgressFunc) *reporter {
	return &reporter{fn: fn, last: -1}
}

func (r *reporter) report(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct <= r.last {
		return
	}
	r.last = pct
	if r.fn != nil {
		r.fn(pct)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
