package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy describes the backoff curve applied between successive retries of
// the same job. The delay for attempt n is BaseDelay * 2^n, capped at
// MaxDelay, optionally stretched by up to JitterFraction of itself. The
// curve is monotonically non-decreasing in the retry count.
type Policy struct {
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration

	// JitterFraction in [0, 1] adds up to that fraction of the computed
	// delay as random extra wait, de-synchronizing retry bursts. Zero
	// disables jitter, which tests rely on.
	JitterFraction float64
}

// DefaultPolicy returns the standard retry curve: 5s, 10s, 20s, ...,
// capped at 5 minutes, no jitter.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:      5 * time.Second,
		MaxDelay:       5 * time.Minute,
		JitterFraction: 0,
	}
}

// Delay returns the wait before retry attempt retryCount (zero-based: the
// first retry of a job uses retryCount 0).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	base := float64(p.BaseDelay) * math.Pow(2, float64(retryCount))
	if base > float64(p.MaxDelay) {
		base = float64(p.MaxDelay)
	}

	d := time.Duration(base)
	if p.JitterFraction > 0 {
		d += time.Duration(rand.Float64() * p.JitterFraction * base) //nolint:gosec
		if d > p.MaxDelay {
			d = p.MaxDelay
		}
	}
	return d
}
