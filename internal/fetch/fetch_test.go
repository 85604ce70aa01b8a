package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/pagetools/internal/cancel"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pagetools/internal/task"
)

// recordingSleeper records backoff waits without sleeping
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
	hook  func()
}

func (s *recordingSleeper) sleep(ctx context.Context, token *cancel.Token, d time.Duration) bool {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return !token.Cancelled()
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func newTestFetcher(cfg Config) (*Fetcher, *recordingSleeper) {
	s := &recordingSleeper{}
	f := New(cfg, logging.NewNop()).
		WithSleeper(s.sleep).
		WithJitter(func() float64 { return 0 })
	return f, s
}

func policy(attempts int) task.RetryPolicy {
	return task.RetryPolicy{MaxAttempts: attempts, BaseBackoff: 100 * time.Millisecond, JitterFraction: 0.1}
}

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (p *progressLog) add(v int) {
	p.mu.Lock()
	p.values = append(p.values, v)
	p.mu.Unlock()
}

func (p *progressLog) get() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.values...)
}

func assertMonotonic(t *testing.T, values []int) {
	t.Helper()
	require.NotEmpty(t, values)
	for i := 1; i < len(values); i++ {
		assert.Greater(t, values[i], values[i-1], "progress went backwards at %d", i)
	}
	assert.Equal(t, 100, values[len(values)-1])
}

func TestFetchSuccessWithLength(t *testing.T) {
	body := bytes.Repeat([]byte("a"), 100<<10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f, sleeper := newTestFetcher(Config{})
	var progress progressLog

	resp, err := f.Fetch(context.Background(), Request{
		URL:      srv.URL,
		Timeout:  5 * time.Second,
		Retry:    policy(3),
		Progress: progress.add,
	})
	require.NoError(t, err)

	assert.Equal(t, body, resp.Body)
	assert.Equal(t, "text/plain; charset=utf-8", resp.MediaType)
	assert.Equal(t, 1, resp.Attempts)
	assert.Empty(t, sleeper.recorded())
	assertMonotonic(t, progress.get())
}

func TestFetchUnknownLengthRunsTickProgression(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"a":`))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte(`1}`))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(Config{TickInterval: 0})
	var progress progressLog

	resp, err := f.Fetch(context.Background(), Request{
		URL: srv.URL, Timeout: 5 * time.Second, Retry: policy(1), Progress: progress.add,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(resp.Body))

	values := progress.get()
	assert.Len(t, values, 100)
	assertMonotonic(t, values)
}

func TestFetchDecompresses(t *testing.T) {
	payload := []byte(`{"message":"compressed"}`)

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write(payload)
	require.NoError(t, gw.Close())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zs := enc.EncodeAll(payload, nil)
	require.NoError(t, enc.Close())

	tests := []struct {
		encoding string
		body     []byte
	}{
		{"gzip", gz.Bytes()},
		{"zstd", zs},
		{"", payload},
	}

	for _, tt := range tests {
		t.Run("encoding "+tt.encoding, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")
				if tt.encoding != "" {
					w.Header().Set("Content-Encoding", tt.encoding)
				}
				w.Header().Set("Content-Length", strconv.Itoa(len(tt.body)))
				_, _ = w.Write(tt.body)
			}))
			defer srv.Close()

			f, _ := newTestFetcher(Config{})
			resp, err := f.Fetch(context.Background(), Request{URL: srv.URL, Timeout: 5 * time.Second, Retry: policy(1)})
			require.NoError(t, err)
			assert.Equal(t, payload, resp.Body)
		})
	}
}

func TestFetchRetriesThenExhausts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f, sleeper := newTestFetcher(Config{})
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL, Timeout: 5 * time.Second, Retry: policy(4)})

	require.Error(t, err)
	assert.Equal(t, task.ErrRetriesExhausted, task.KindOf(err))
	assert.Equal(t, int32(4), hits.Load())

	waits := sleeper.recorded()
	require.Len(t, waits, 3)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, waits)
}

func TestFetchBackoffIncludesJitter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f, sleeper := newTestFetcher(Config{})
	f.WithJitter(func() float64 { return 0.5 })

	_, err := f.Fetch(context.Background(), Request{URL: srv.URL, Timeout: 5 * time.Second, Retry: policy(3)})
	require.Error(t, err)

	waits := sleeper.recorded()
	require.Len(t, waits, 2)
	assert.Equal(t, 105*time.Millisecond, waits[0])
	assert.Equal(t, 210*time.Millisecond, waits[1])
}

func TestFetchRecoversAfterTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, sleeper := newTestFetcher(Config{})
	resp, err := f.Fetch(context.Background(), Request{URL: srv.URL, Timeout: 5 * time.Second, Retry: policy(3)})
	require.NoError(t, err)

	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, 3, resp.Attempts)
	assert.Len(t, sleeper.recorded(), 2)
}

func TestFetchNonRetryableStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f, sleeper := newTestFetcher(Config{})
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL, Timeout: 5 * time.Second, Retry: policy(3)})

	require.Error(t, err)
	assert.Equal(t, task.ErrConnectionFailed, task.KindOf(err))
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, sleeper.recorded())
}

func TestFetchUnsupportedScheme(t *testing.T) {
	f, sleeper := newTestFetcher(Config{})
	_, err := f.Fetch(context.Background(), Request{URL: "ftp://example.com/file", Timeout: time.Second, Retry: policy(3)})

	require.Error(t, err)
	assert.Equal(t, task.ErrConnectionFailed, task.KindOf(err))
	assert.Empty(t, sleeper.recorded())
}

func TestFetchTimeoutOnLastAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	f, sleeper := newTestFetcher(Config{})
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL, Timeout: 50 * time.Millisecond, Retry: policy(2)})

	require.Error(t, err)
	assert.Equal(t, task.ErrTimeout, task.KindOf(err))
	assert.Equal(t, int32(2), hits.Load())
	assert.Len(t, sleeper.recorded(), 1)
}

func TestFetchCancelledBeforeStart(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	token := cancel.New()
	token.Cancel()

	f, _ := newTestFetcher(Config{})
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL, Timeout: time.Second, Retry: policy(3), Token: token})

	assert.ErrorIs(t, err, task.ErrCancelled)
	assert.Equal(t, int32(0), hits.Load())
}

func TestFetchCancelledDuringBackoff(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	token := cancel.New()
	f, sleeper := newTestFetcher(Config{})
	sleeper.hook = func() { token.Cancel() }

	_, err := f.Fetch(context.Background(), Request{URL: srv.URL, Timeout: time.Second, Retry: policy(5), Token: token})

	assert.ErrorIs(t, err, task.ErrCancelled)
	assert.Equal(t, task.ErrorKind(""), task.KindOf(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchCancelledDuringTicks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	token := cancel.New()
	f, _ := newTestFetcher(Config{TickInterval: 0})

	var progress progressLog
	_, err := f.Fetch(context.Background(), Request{
		URL: srv.URL, Timeout: time.Second, Retry: policy(1), Token: token,
		Progress: func(p int) {
			progress.add(p)
			if p == 10 {
				token.Cancel()
			}
		},
	})

	assert.ErrorIs(t, err, task.ErrCancelled)
	values := progress.get()
	assert.Equal(t, 10, values[len(values)-1])
}

func TestFetchBodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 1024))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(Config{MaxBodyBytes: 100})
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL, Timeout: time.Second, Retry: policy(3)})

	require.Error(t, err)
	assert.Equal(t, task.ErrConnectionFailed, task.KindOf(err))
}

func TestFetchRejectsInvalidPolicy(t *testing.T) {
	f, _ := newTestFetcher(Config{})
	_, err := f.Fetch(context.Background(), Request{URL: "http://x", Timeout: time.Second, Retry: task.RetryPolicy{MaxAttempts: 0, BaseBackoff: time.Second}})
	assert.Equal(t, task.ErrInvalidPolicy, task.KindOf(err))
}
