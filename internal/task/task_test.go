package task

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTask() Task {
	return Task{
		URL:     "http://example.com",
		Kind:    KindFetch,
		Retry:   DefaultRetryPolicy(),
		Timeout: time.Second,
	}
}

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Task)
		want   ErrorKind
	}{
		{"valid fetch", func(*Task) {}, ""},
		{"unknown kind", func(t *Task) { t.Kind = "download_all" }, ErrUnknownKind},
		{"analyze without operation", func(t *Task) { t.Kind = KindAnalyze }, ErrMissingOperation},
		{"analyze with operation", func(t *Task) { t.Kind = KindAnalyze; t.Operation = "sentiment_analysis" }, ""},
		{"no target", func(t *Task) { t.URL = "" }, ErrMissingTarget},
		{"inline payload", func(t *Task) { t.URL = ""; t.Payload = []byte("x") }, ""},
		{"zero attempts", func(t *Task) { t.Retry.MaxAttempts = 0 }, ErrInvalidPolicy},
		{"negative backoff", func(t *Task) { t.Retry.BaseBackoff = -time.Second }, ErrInvalidPolicy},
		{"jitter of one", func(t *Task) { t.Retry.JitterFraction = 1 }, ErrInvalidPolicy},
		{"zero timeout", func(t *Task) { t.Timeout = 0 }, ErrInvalidPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := validTask()
			tt.mutate(&task)

			err := task.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestWithDefaults(t *testing.T) {
	task := Task{URL: "http://example.com", Kind: KindFetch}
	task = task.WithDefaults(DefaultRetryPolicy(), 10*time.Second)

	assert.Equal(t, DefaultRetryPolicy(), task.Retry)
	assert.Equal(t, 10*time.Second, task.Timeout)

	custom := RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Millisecond}
	task = Task{Retry: custom, Timeout: time.Second}.WithDefaults(DefaultRetryPolicy(), 10*time.Second)
	assert.Equal(t, custom, task.Retry)
	assert.Equal(t, time.Second, task.Timeout)
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"fetch":       KindFetch,
		"download":    KindFetch,
		"Process":     KindProcess,
		"ai_analysis": KindAnalyze,
		" analyze ":   KindAnalyze,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseKind("render")
	assert.Equal(t, ErrUnknownKind, KindOf(err))
}

func TestBackoffGrowth(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseBackoff: 100 * time.Millisecond, JitterFraction: 0.5}

	assert.Zero(t, p.Backoff(1, 0))
	assert.Equal(t, 100*time.Millisecond, p.Backoff(2, 0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(3, 0))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(4, 0))

	// full jitter draw stays under the 1+jitter ceiling
	max := p.Backoff(2, 0.999999)
	assert.Greater(t, max, 100*time.Millisecond)
	assert.Less(t, max, 150*time.Millisecond)
	assert.Equal(t, 125*time.Millisecond, p.Backoff(2, 0.5))
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("fetch: %w", NewError(ErrRetriesExhausted, cause, "gave up after %d attempts", 3))

	assert.Equal(t, ErrRetriesExhausted, KindOf(err))
	assert.True(t, errors.Is(err, &Error{Kind: ErrRetriesExhausted}))
	assert.False(t, errors.Is(err, &Error{Kind: ErrTimeout}))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "network", ErrRetriesExhausted.Family())
	assert.Contains(t, err.Error(), "gave up after 3 attempts")
	assert.Equal(t, ErrorKind(""), KindOf(cause))
}

func TestETA(t *testing.T) {
	_, ok := ETA(time.Second, 0)
	assert.False(t, ok)

	eta, ok := ETA(10*time.Second, 25)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, eta)

	eta, ok = ETA(time.Minute, 100)
	require.True(t, ok)
	assert.Zero(t, eta)
}

func TestOutcomeEventType(t *testing.T) {
	assert.Equal(t, EventSucceeded, Succeeded(&Result{}).EventType())
	assert.Equal(t, EventCancelled, Cancelled().EventType())
	assert.Equal(t, EventFailed, Failed(NewError(ErrTimeout, nil, "slow")).EventType())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateRunning.Terminal())
}
