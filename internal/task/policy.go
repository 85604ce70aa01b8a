package task

import (
	"fmt"
	"math"
	"time"
)

// RetryPolicy controls how the fetcher retries transient failures
type RetryPolicy struct {
	MaxAttempts    int           `json:"max_attempts"`
	BaseBackoff    time.Duration `json:"base_backoff"`
	JitterFraction float64       `json:"jitter_fraction"`
}

// DefaultRetryPolicy mirrors the desktop shell defaults: three attempts,
// one second base backoff, ten percent jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseBackoff:    time.Second,
		JitterFraction: 0.1,
	}
}

// IsZero reports whether the policy was left unset
func (p RetryPolicy) IsZero() bool {
	return p == RetryPolicy{}
}

// Validate checks the policy invariants
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseBackoff <= 0 {
		return fmt.Errorf("base backoff must be positive, got %s", p.BaseBackoff)
	}
	if p.JitterFraction < 0 || p.JitterFraction >= 1 {
		return fmt.Errorf("jitter fraction must be in [0,1), got %v", p.JitterFraction)
	}
	return nil
}

// Backoff returns the delay before the given attempt (attempt >= 2):
// BaseBackoff * 2^(attempt-2) * (1 + u*JitterFraction), where u in [0,1)
// is supplied by the caller. Attempt 1 has no delay.
func (p RetryPolicy) Backoff(attempt int, u float64) time.Duration {
	if attempt < 2 {
		return 0
	}
	if u < 0 {
		u = 0
	}
	if u >= 1 {
		u = math.Nextafter(1, 0)
	}
	factor := math.Pow(2, float64(attempt-2)) * (1 + u*p.JitterFraction)
	return time.Duration(float64(p.BaseBackoff) * factor)
}
