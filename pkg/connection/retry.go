package connection

import (
	"math"
	"time"

	"github.com/tripnest/tripsync/internal/rand"
)

// Retryer decides whether and when to reconnect after a lost connection.
type Retryer interface {
	// NextDelay returns the delay before retry number attempt (0-based) and
	// whether to retry at all.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)
}

// ExponentialBackoffRetryer waits InitialDelay × Multiplier^attempt.
type ExponentialBackoffRetryer struct {
	InitialDelay time.Duration

	// MaxDelay caps the delay. Zero means no cap.
	MaxDelay time.Duration

	Multiplier float64

	// MaxRetries is the maximum number of attempts. Zero means no retries.
	MaxRetries int

	// JitterFactor adds up to ±JitterFactor × delay. Zero disables jitter.
	JitterFactor float64
}

// NewExponentialBackoffRetryer doubles base on every attempt, without jitter.
func NewExponentialBackoffRetryer(base time.Duration, maxRetries int) *ExponentialBackoffRetryer {
	return &ExponentialBackoffRetryer{
		InitialDelay: base,
		Multiplier:   2.0,
		MaxRetries:   maxRetries,
	}
}

func (r *ExponentialBackoffRetryer) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if attempt >= r.MaxRetries {
		return 0, false
	}

	delay := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt))
	if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}

	return rand.Jitter(time.Duration(delay), r.JitterFactor), true
}

// FixedDelayRetryer waits Delay between attempts.
type FixedDelayRetryer struct {
	Delay      time.Duration
	MaxRetries int
}

func (r *FixedDelayRetryer) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if attempt >= r.MaxRetries {
		return 0, false
	}
	return r.Delay, true
}
