package live

import (
	"math"
	"time"
)

// BackoffPolicy is the bounded exponential delay schedule governing
// reconnect attempts.
type BackoffPolicy struct {
	// BaseDelay is the delay before the first reconnect attempt.
	BaseDelay time.Duration
	// Multiplier scales the delay for each subsequent attempt.
	Multiplier float64
	// MaxAttempts is the number of reconnects tried before the channel
	// gives up and reports a terminal failure.
	MaxAttempts int
}

// DefaultBackoffPolicy returns the policy used when none is configured:
// 3s base delay, 1.5x growth, 5 attempts.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:   3 * time.Second,
		Multiplier:  1.5,
		MaxAttempts: 5,
	}
}

// DelayFor returns the delay scheduled before reconnect attempt k
// (0-indexed): BaseDelay * Multiplier^k.
func (p BackoffPolicy) DelayFor(attempt int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt)))
}

// withDefaults fills zero fields from DefaultBackoffPolicy.
func (p BackoffPolicy) withDefaults() BackoffPolicy {
	def := DefaultBackoffPolicy()
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	return p
}
