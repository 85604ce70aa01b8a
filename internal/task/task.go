// Package task defines the data model shared by the fetcher, decoder,
// analysis registry and executor: tasks, retry policy, lifecycle states,
// events and outcomes.
package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/pagetools/internal/shared/id"
)

// Kind selects what the executor does with the fetched payload
type Kind string

const (
	// KindFetch returns the decoded payload
	KindFetch Kind = "fetch"
	// KindProcess reduces the payload to a readable document
	KindProcess Kind = "process"
	// KindAnalyze runs a named analysis operation over the payload
	KindAnalyze Kind = "analyze"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	switch k {
	case KindFetch, KindProcess, KindAnalyze:
		return true
	}
	return false
}

// ParseKind parses a kind name case-insensitively. The desktop shell's
// legacy action names ("download", "ai_analysis") are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fetch", "download":
		return KindFetch, nil
	case "process":
		return KindProcess, nil
	case "analyze", "analysis", "ai_analysis":
		return KindAnalyze, nil
	}
	return "", NewError(ErrUnknownKind, nil, "unknown task kind %q", s)
}

// Task is one unit of work. It is immutable once submitted.
type Task struct {
	ID id.TaskID

	// URL is fetched unless Payload is set
	URL string
	// Payload supplies the target bytes directly, skipping the network
	Payload []byte
	// MediaType declares the type of Payload
	MediaType string

	Kind       Kind
	Operation  string
	Parameters map[string]string

	Retry   RetryPolicy
	Timeout time.Duration
}

// HasPayload reports whether the target is an inline byte payload
func (t Task) HasPayload() bool {
	return t.Payload != nil
}

// Target describes the task target for logs
func (t Task) Target() string {
	if t.HasPayload() {
		return fmt.Sprintf("payload(%d bytes)", len(t.Payload))
	}
	return t.URL
}

// Validate checks the task is runnable. The returned error is a *Error.
func (t Task) Validate() error {
	if !t.Kind.Valid() {
		return NewError(ErrUnknownKind, nil, "unknown task kind %q", t.Kind)
	}
	if t.Kind == KindAnalyze && t.Operation == "" {
		return NewError(ErrMissingOperation, nil, "analyze task requires an operation")
	}
	if !t.HasPayload() && t.URL == "" {
		return NewError(ErrMissingTarget, nil, "task has neither url nor payload")
	}
	if err := t.Retry.Validate(); err != nil {
		return NewError(ErrInvalidPolicy, err, "invalid retry policy")
	}
	if t.Timeout <= 0 {
		return NewError(ErrInvalidPolicy, nil, "timeout must be positive, got %s", t.Timeout)
	}
	return nil
}

// WithDefaults fills an unset retry policy and timeout
func (t Task) WithDefaults(retry RetryPolicy, timeout time.Duration) Task {
	if t.Retry.IsZero() {
		t.Retry = retry
	}
	if t.Timeout == 0 {
		t.Timeout = timeout
	}
	return t
}
